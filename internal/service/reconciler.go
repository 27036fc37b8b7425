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

// ReconcilerService mirrors engine state onto accepted/running runs,
// enforces run timeouts, propagates cancellation, and bills terminal
// transitions through the usage recorder.
type ReconcilerService struct {
	runs    RunRepository
	envs    EnvironmentRepository
	usage   *UsageRecorder
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

func NewReconcilerService(
	runs RunRepository,
	envs EnvironmentRepository,
	usage *UsageRecorder,
	adapter engine.Adapter,
	audit *AuditWriter,
	tx TxRunner,
	cfg *config.Config,
) *ReconcilerService {
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
	return &ReconcilerService{
		runs:     runs,
		envs:     envs,
		usage:    usage,
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
func (s *ReconcilerService) WithClock(now func() time.Time) *ReconcilerService {
	s.now = now
	return s
}

func (s *ReconcilerService) Start() {
	s.startOnce.Do(func() {
		logger.L().Info("reconciler started", zap.Duration("interval", s.interval), zap.Int("batch", s.batch))
		go s.runLoop()
	})
}

func (s *ReconcilerService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		logger.L().Info("reconciler stopped")
	})
}

func (s *ReconcilerService) runLoop() {
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

func (s *ReconcilerService) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	processed, err := s.RunOnce(ctx)
	if err != nil {
		logger.L().Error("reconciler pass failed", zap.Error(err))
		return
	}
	if processed > 0 {
		logger.L().Info("reconciler pass done", zap.Int("processed", processed))
	}
}

// RunOnce reconciles up to batch engine-active runs, oldest update first.
func (s *ReconcilerService) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		active, err := s.runs.ListEngineActive(txCtx, s.batch)
		if err != nil {
			return fmt.Errorf("list engine-active runs: %w", err)
		}
		for _, run := range active {
			env, err := s.envs.GetByID(txCtx, run.EnvironmentID)
			if err != nil {
				return fmt.Errorf("get environment: %w", err)
			}
			if env == nil {
				continue
			}
			if err := s.reconcile(txCtx, env, run); err != nil {
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

func (s *ReconcilerService) reconcile(ctx context.Context, env *domain.Environment, run *domain.Run) error {
	now := s.now().UTC()

	if run.StartedAt != nil && now.Sub(*run.StartedAt) > time.Duration(run.TimeoutSeconds)*time.Second {
		return s.timeOut(ctx, env, run, now)
	}

	if run.CancellationRequested && run.EMRJobRunID != "" {
		awsRequestID, err := s.adapter.CancelJobRun(ctx, env, run)
		if err != nil {
			logger.FromContext(ctx).Warn("cancel dispatch failed",
				zap.String("run_id", run.ID), zap.Error(err))
		} else {
			if err := s.audit.Write(ctx, &domain.AuditEvent{
				TenantID:     env.TenantID,
				Actor:        ActorReconciler,
				Action:       "run.cancel.dispatched",
				EntityType:   "run",
				EntityID:     run.ID,
				AWSRequestID: awsRequestID,
			}); err != nil {
				return err
			}
		}
	}

	engineState, errorMessage, err := s.adapter.DescribeJobRun(ctx, env, run)
	if err != nil {
		// Transient adapter failure; the run is re-picked next pass.
		logger.FromContext(ctx).Warn("describe failed",
			zap.String("run_id", run.ID), zap.Error(err))
		return nil
	}

	mapped := domain.RunStateFromEngine(engineState)
	run.State = mapped
	if errorMessage != "" {
		run.ErrorMessage = errorMessage
	}
	if domain.IsTerminalRunState(mapped) {
		if run.EndedAt == nil {
			endedAt := now
			run.EndedAt = &endedAt
		}
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if domain.IsTerminalRunState(mapped) {
		if err := s.usage.Record(ctx, env, run); err != nil {
			return fmt.Errorf("record usage: %w", err)
		}
	}
	return s.audit.Write(ctx, &domain.AuditEvent{
		TenantID:   env.TenantID,
		Actor:      ActorReconciler,
		Action:     "run.reconciled",
		EntityType: "run",
		EntityID:   run.ID,
		Details:    map[string]any{"emr_state": engineState, "state": mapped},
	})
}

func (s *ReconcilerService) timeOut(ctx context.Context, env *domain.Environment, run *domain.Run, now time.Time) error {
	run.CancellationRequested = true
	if run.EMRJobRunID != "" {
		awsRequestID, err := s.adapter.CancelJobRun(ctx, env, run)
		if err != nil {
			logger.FromContext(ctx).Warn("timeout cancel dispatch failed",
				zap.String("run_id", run.ID), zap.Error(err))
		} else {
			if err := s.audit.Write(ctx, &domain.AuditEvent{
				TenantID:     env.TenantID,
				Actor:        ActorReconciler,
				Action:       "run.timeout_cancel.dispatched",
				EntityType:   "run",
				EntityID:     run.ID,
				AWSRequestID: awsRequestID,
			}); err != nil {
				return err
			}
		}
	}

	run.State = domain.RunStateTimedOut
	run.ErrorMessage = "Run exceeded timeout_seconds."
	endedAt := now
	run.EndedAt = &endedAt
	if err := s.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if err := s.usage.Record(ctx, env, run); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return s.audit.Write(ctx, &domain.AuditEvent{
		TenantID:   env.TenantID,
		Actor:      ActorReconciler,
		Action:     "run.timed_out",
		EntityType: "run",
		EntityID:   run.ID,
	})
}
