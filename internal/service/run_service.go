package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/engine"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
)

var (
	ErrRunNotFound         = infraerrors.NotFound("RUN_NOT_FOUND", "Run not found.")
	ErrEnvironmentNotReady = infraerrors.Conflict("ENVIRONMENT_NOT_READY", "Environment is not ready.")
)

type RunRepository interface {
	Insert(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id string) (*domain.Run, error)
	GetByJobAndKey(ctx context.Context, jobID, idempotencyKey string) (*domain.Run, error)
	List(ctx context.Context, tenantID, state string) ([]*domain.Run, error)
	ListActiveByEnvironment(ctx context.Context, environmentID string) ([]*domain.Run, error)
	ListQueued(ctx context.Context, limit int) ([]*domain.Run, error)
	ListEngineActive(ctx context.Context, limit int) ([]*domain.Run, error)
	Update(ctx context.Context, run *domain.Run) error
}

type RunService struct {
	jobs    JobRepository
	envs    EnvironmentRepository
	runs    RunRepository
	quota   *QuotaChecker
	adapter engine.Adapter
	audit   *AuditWriter
	tx      TxRunner
	now     func() time.Time
}

func NewRunService(
	jobs JobRepository,
	envs EnvironmentRepository,
	runs RunRepository,
	quota *QuotaChecker,
	adapter engine.Adapter,
	audit *AuditWriter,
	tx TxRunner,
) *RunService {
	return &RunService{
		jobs:    jobs,
		envs:    envs,
		runs:    runs,
		quota:   quota,
		adapter: adapter,
		audit:   audit,
		tx:      tx,
		now:     time.Now,
	}
}

// WithClock overrides the wall clock for tests.
func (s *RunService) WithClock(now func() time.Time) *RunService {
	s.now = now
	return s
}

type CreateRunInput struct {
	// Args nil means inherit the job's args.
	Args []string
	// SparkConf nil means no overrides.
	SparkConf          map[string]string
	RequestedResources domain.RequestedResources
	// TimeoutSeconds 0 means the job's default.
	TimeoutSeconds int
}

func validateRequestedResources(r *domain.RequestedResources) error {
	if r.DriverVCPU == 0 {
		r.DriverVCPU = 1
	}
	if r.DriverMemoryGB == 0 {
		r.DriverMemoryGB = 4
	}
	if r.ExecutorVCPU == 0 {
		r.ExecutorVCPU = 2
	}
	if r.ExecutorMemoryGB == 0 {
		r.ExecutorMemoryGB = 8
	}
	switch {
	case r.DriverVCPU < 1 || r.DriverVCPU > 64:
		return infraerrors.UnprocessableEntity("REQUESTED_RESOURCES_INVALID", "driver_vcpu must be between 1 and 64.")
	case r.DriverMemoryGB < 1 || r.DriverMemoryGB > 512:
		return infraerrors.UnprocessableEntity("REQUESTED_RESOURCES_INVALID", "driver_memory_gb must be between 1 and 512.")
	case r.ExecutorVCPU < 1 || r.ExecutorVCPU > 64:
		return infraerrors.UnprocessableEntity("REQUESTED_RESOURCES_INVALID", "executor_vcpu must be between 1 and 64.")
	case r.ExecutorMemoryGB < 1 || r.ExecutorMemoryGB > 512:
		return infraerrors.UnprocessableEntity("REQUESTED_RESOURCES_INVALID", "executor_memory_gb must be between 1 and 512.")
	case r.ExecutorInstances < 0 || r.ExecutorInstances > 1000:
		return infraerrors.UnprocessableEntity("REQUESTED_RESOURCES_INVALID", "executor_instances must be between 0 and 1000.")
	}
	return nil
}

// Create admits and persists a run at state=queued. A (job_id,
// idempotency_key) hit returns the existing run, belt and suspenders
// alongside the request-level idempotency guard.
func (s *RunService) Create(
	ctx context.Context,
	meta RequestMeta,
	jobID, idempotencyKey string,
	input CreateRunInput,
) (*domain.Run, error) {
	if err := validateRequestedResources(&input.RequestedResources); err != nil {
		return nil, err
	}
	if input.TimeoutSeconds != 0 && (input.TimeoutSeconds < 60 || input.TimeoutSeconds > 172800) {
		return nil, infraerrors.UnprocessableEntity("TIMEOUT_SECONDS_INVALID", "timeout_seconds must be between 60 and 172800.")
	}

	var run *domain.Run
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		job, err := s.jobs.GetByID(txCtx, jobID)
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		if job == nil {
			return ErrJobNotFound
		}
		env, err := s.envs.GetByID(txCtx, job.EnvironmentID)
		if err != nil {
			return fmt.Errorf("get environment: %w", err)
		}
		if env == nil {
			return ErrEnvironmentNotFound
		}
		if env.Status != domain.EnvironmentStatusReady {
			return ErrEnvironmentNotReady
		}

		if err := s.quota.Admit(txCtx, env, input.RequestedResources); err != nil {
			return err
		}

		timeoutSeconds := input.TimeoutSeconds
		if timeoutSeconds == 0 {
			timeoutSeconds = job.TimeoutSeconds
		}
		if timeoutSeconds > env.MaxRunSeconds {
			return infraerrors.UnprocessableEntity("RUN_TIMEOUT_TOO_LARGE",
				fmt.Sprintf("Run timeout exceeds environment max_run_seconds (%d).", env.MaxRunSeconds))
		}

		existing, err := s.runs.GetByJobAndKey(txCtx, job.ID, idempotencyKey)
		if err != nil {
			return fmt.Errorf("lookup run by idempotency key: %w", err)
		}
		if existing != nil {
			run = existing
			return nil
		}

		args := input.Args
		if args == nil {
			args = job.Args
		}
		sparkConf := input.SparkConf
		if sparkConf == nil {
			sparkConf = map[string]string{}
		}
		run = &domain.Run{
			ID:                 uuid.NewString(),
			JobID:              job.ID,
			EnvironmentID:      env.ID,
			State:              domain.RunStateQueued,
			Attempt:            1,
			IdempotencyKey:     idempotencyKey,
			RequestedResources: input.RequestedResources,
			ArgsOverrides:      args,
			SparkConfOverrides: sparkConf,
			TimeoutSeconds:     timeoutSeconds,
		}
		if err := s.runs.Insert(txCtx, run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return s.audit.Write(txCtx, &domain.AuditEvent{
			TenantID:   env.TenantID,
			Actor:      meta.Actor,
			Action:     "run.create",
			SourceIP:   meta.SourceIP,
			EntityType: "run",
			EntityID:   run.ID,
			Details: map[string]any{
				"job_id":              job.ID,
				"requested_resources": input.RequestedResources,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Cancel is a no-op on terminal runs. Pre-dispatch runs go straight to
// cancelled; anything already handed to the engine gets
// cancellation_requested and is finished by the reconciler.
func (s *RunService) Cancel(ctx context.Context, meta RequestMeta, runID string) (*domain.Run, error) {
	var run *domain.Run
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		run, err = s.runs.GetByID(txCtx, runID)
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		if run == nil {
			return ErrRunNotFound
		}
		env, err := s.envs.GetByID(txCtx, run.EnvironmentID)
		if err != nil {
			return fmt.Errorf("get environment: %w", err)
		}
		if env == nil {
			return ErrEnvironmentNotFound
		}
		if domain.IsTerminalRunState(run.State) {
			return nil
		}

		if run.State == domain.RunStateQueued || run.State == domain.RunStateDispatching {
			run.State = domain.RunStateCancelled
			endedAt := s.now().UTC()
			run.EndedAt = &endedAt
		} else {
			run.CancellationRequested = true
		}
		if err := s.runs.Update(txCtx, run); err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		return s.audit.Write(txCtx, &domain.AuditEvent{
			TenantID:   env.TenantID,
			Actor:      meta.Actor,
			Action:     "run.cancel.request",
			SourceIP:   meta.SourceIP,
			EntityType: "run",
			EntityID:   run.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *RunService) Get(ctx context.Context, id string) (*domain.Run, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *RunService) List(ctx context.Context, tenantID, state string) ([]*domain.Run, error) {
	runs, err := s.runs.List(ctx, tenantID, state)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// RunLogs is a bounded snapshot of a run's driver/executor log lines.
type RunLogs struct {
	Run   *domain.Run
	Lines []string
}

func (s *RunService) Logs(ctx context.Context, runID string, limit int) (*RunLogs, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	env, err := s.envs.GetByID(ctx, run.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("get environment: %w", err)
	}
	if env == nil {
		return nil, ErrEnvironmentNotFound
	}
	lines, err := s.adapter.FetchLogLines(ctx, env.CustomerRoleARN, env.Region, run.LogGroup, run.LogStreamPrefix, limit)
	if err != nil {
		return nil, infraerrors.ServiceUnavailable("LOG_FETCH_FAILED", "failed to fetch run logs").WithCause(err)
	}
	return &RunLogs{Run: run, Lines: lines}, nil
}
