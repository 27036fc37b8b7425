package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sparkpilot/sparkpilot/internal/config"
	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/engine"
	"github.com/sparkpilot/sparkpilot/internal/pkg/logger"
)

// SchedulerService dispatches queued runs to the engine, oldest first.
type SchedulerService struct {
	runs    RunRepository
	jobs    JobRepository
	envs    EnvironmentRepository
	adapter engine.Adapter
	audit   *AuditWriter
	tx      TxRunner

	batch    int
	interval time.Duration
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

func NewSchedulerService(
	runs RunRepository,
	jobs JobRepository,
	envs EnvironmentRepository,
	adapter engine.Adapter,
	audit *AuditWriter,
	tx TxRunner,
	cfg *config.Config,
) *SchedulerService {
	batch := 20
	interval := 15 * time.Second
	if cfg != nil {
		if cfg.QueueBatchSize > 0 {
			batch = cfg.QueueBatchSize
		}
		if cfg.PollIntervalSeconds > 0 {
			interval = cfg.PollInterval()
		}
	}
	return &SchedulerService{
		runs:     runs,
		jobs:     jobs,
		envs:     envs,
		adapter:  adapter,
		audit:    audit,
		tx:       tx,
		batch:    batch,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// WithClock overrides the wall clock for tests.
func (s *SchedulerService) WithClock(now func() time.Time) *SchedulerService {
	s.now = now
	return s
}

func (s *SchedulerService) Start() {
	s.startOnce.Do(func() {
		logger.L().Info("scheduler started", zap.Duration("interval", s.interval), zap.Int("batch", s.batch))
		go s.runLoop()
	})
}

func (s *SchedulerService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		logger.L().Info("scheduler stopped")
	})
}

func (s *SchedulerService) runLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass()
	for {
		select {
		case <-ticker.C:
			s.pass()
		case <-s.stopCh:
			return
		}
	}
}

func (s *SchedulerService) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	processed, err := s.RunOnce(ctx)
	if err != nil {
		logger.L().Error("scheduler pass failed", zap.Error(err))
		return
	}
	if processed > 0 {
		logger.L().Info("scheduler pass done", zap.Int("processed", processed))
	}
}

// RunOnce dispatches up to batch queued runs. A dispatch failure marks the
// run failed and does not abort the batch.
func (s *SchedulerService) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		queued, err := s.runs.ListQueued(txCtx, s.batch)
		if err != nil {
			return fmt.Errorf("list queued runs: %w", err)
		}
		for _, run := range queued {
			if err := s.dispatch(txCtx, run); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

func (s *SchedulerService) dispatch(ctx context.Context, run *domain.Run) error {
	if run.CancellationRequested {
		run.State = domain.RunStateCancelled
		endedAt := s.now().UTC()
		run.EndedAt = &endedAt
		if err := s.runs.Update(ctx, run); err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		return nil
	}

	job, err := s.jobs.GetByID(ctx, run.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	env, err := s.envs.GetByID(ctx, run.EnvironmentID)
	if err != nil {
		return fmt.Errorf("get environment: %w", err)
	}
	if job == nil || env == nil {
		return s.markDispatchFailed(ctx, run, env, fmt.Errorf("job or environment missing for run %s", run.ID))
	}

	run.State = domain.RunStateDispatching
	dispatch, startErr := s.adapter.StartJobRun(ctx, env, job, run)
	if startErr != nil {
		return s.markDispatchFailed(ctx, run, env, startErr)
	}

	run.State = domain.RunStateAccepted
	startedAt := s.now().UTC()
	run.StartedAt = &startedAt
	run.EMRJobRunID = dispatch.EMRJobRunID
	run.LogGroup = dispatch.LogGroup
	run.LogStreamPrefix = dispatch.LogStreamPrefix
	run.DriverLogURI = dispatch.DriverLogURI
	run.SparkUIURI = dispatch.SparkUIURI
	if err := s.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return s.audit.Write(ctx, &domain.AuditEvent{
		TenantID:     env.TenantID,
		Actor:        ActorScheduler,
		Action:       "run.dispatched",
		EntityType:   "run",
		EntityID:     run.ID,
		AWSRequestID: dispatch.AWSRequestID,
		Details:      map[string]any{"emr_job_run_id": run.EMRJobRunID},
	})
}

func (s *SchedulerService) markDispatchFailed(ctx context.Context, run *domain.Run, env *domain.Environment, cause error) error {
	run.State = domain.RunStateFailed
	run.ErrorMessage = cause.Error()
	endedAt := s.now().UTC()
	run.EndedAt = &endedAt
	if err := s.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	tenantID := ""
	if env != nil {
		tenantID = env.TenantID
	}
	return s.audit.Write(ctx, &domain.AuditEvent{
		TenantID:   tenantID,
		Actor:      ActorScheduler,
		Action:     "run.dispatch_failed",
		EntityType: "run",
		EntityID:   run.ID,
		Details:    map[string]any{"error": cause.Error()},
	})
}
