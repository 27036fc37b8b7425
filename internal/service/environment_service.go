package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
)

var (
	ErrEnvironmentNotFound  = infraerrors.NotFound("ENVIRONMENT_NOT_FOUND", "Environment not found.")
	ErrOperationNotFound    = infraerrors.NotFound("PROVISIONING_OPERATION_NOT_FOUND", "Provisioning operation not found.")
	ErrEKSClusterARNMissing = infraerrors.UnprocessableEntity("EKS_CLUSTER_ARN_REQUIRED", "eks_cluster_arn is required for byoc_lite.")
	ErrEKSNamespaceMissing  = infraerrors.UnprocessableEntity("EKS_NAMESPACE_REQUIRED", "eks_namespace is required for byoc_lite.")
)

type EnvironmentRepository interface {
	Insert(ctx context.Context, env *domain.Environment) error
	GetByID(ctx context.Context, id string) (*domain.Environment, error)
	List(ctx context.Context, tenantID string) ([]*domain.Environment, error)
	Update(ctx context.Context, env *domain.Environment) error
}

type ProvisioningOperationRepository interface {
	Insert(ctx context.Context, op *domain.ProvisioningOperation) error
	GetByID(ctx context.Context, id string) (*domain.ProvisioningOperation, error)
	ListPending(ctx context.Context) ([]*domain.ProvisioningOperation, error)
	Update(ctx context.Context, op *domain.ProvisioningOperation) error
}

type EnvironmentService struct {
	tenants TenantRepository
	envs    EnvironmentRepository
	ops     ProvisioningOperationRepository
	audit   *AuditWriter
	tx      TxRunner
	now     func() time.Time
}

func NewEnvironmentService(
	tenants TenantRepository,
	envs EnvironmentRepository,
	ops ProvisioningOperationRepository,
	audit *AuditWriter,
	tx TxRunner,
) *EnvironmentService {
	return &EnvironmentService{
		tenants: tenants,
		envs:    envs,
		ops:     ops,
		audit:   audit,
		tx:      tx,
		now:     time.Now,
	}
}

// WithClock overrides the wall clock for tests.
func (s *EnvironmentService) WithClock(now func() time.Time) *EnvironmentService {
	s.now = now
	return s
}

type CreateEnvironmentInput struct {
	TenantID         string
	ProvisioningMode string
	Region           string
	CustomerRoleARN  string
	EKSClusterARN    string
	EKSNamespace     string
	WarmPoolEnabled  bool
	Quotas           domain.EnvironmentQuotas
}

func (s *EnvironmentService) validateCreate(input *CreateEnvironmentInput) error {
	if input.ProvisioningMode == "" {
		input.ProvisioningMode = domain.ProvisioningModeFull
	}
	if input.ProvisioningMode != domain.ProvisioningModeFull && input.ProvisioningMode != domain.ProvisioningModeBYOCLite {
		return infraerrors.UnprocessableEntity("PROVISIONING_MODE_INVALID", "provisioning_mode must be full or byoc_lite.")
	}
	if input.Region == "" {
		input.Region = "us-east-1"
	}
	if strings.TrimSpace(input.CustomerRoleARN) == "" {
		return infraerrors.UnprocessableEntity("CUSTOMER_ROLE_ARN_REQUIRED", "customer_role_arn is required.")
	}
	if input.Quotas.MaxConcurrentRuns == 0 {
		input.Quotas.MaxConcurrentRuns = 10
	}
	if input.Quotas.MaxVCPU == 0 {
		input.Quotas.MaxVCPU = 256
	}
	if input.Quotas.MaxRunSeconds == 0 {
		input.Quotas.MaxRunSeconds = 7200
	}
	if input.Quotas.MaxConcurrentRuns < 1 || input.Quotas.MaxConcurrentRuns > 1000 {
		return infraerrors.UnprocessableEntity("QUOTAS_INVALID", "max_concurrent_runs must be between 1 and 1000.")
	}
	if input.Quotas.MaxVCPU < 1 || input.Quotas.MaxVCPU > 20000 {
		return infraerrors.UnprocessableEntity("QUOTAS_INVALID", "max_vcpu must be between 1 and 20000.")
	}
	if input.Quotas.MaxRunSeconds < 60 || input.Quotas.MaxRunSeconds > 172800 {
		return infraerrors.UnprocessableEntity("QUOTAS_INVALID", "max_run_seconds must be between 60 and 172800.")
	}
	if input.ProvisioningMode == domain.ProvisioningModeBYOCLite {
		if input.EKSClusterARN == "" {
			return ErrEKSClusterARNMissing
		}
		if input.EKSNamespace == "" {
			return ErrEKSNamespaceMissing
		}
	}
	return nil
}

// Create persists the environment at status=provisioning together with its
// queued ProvisioningOperation; the provisioner loop advances it from there.
func (s *EnvironmentService) Create(
	ctx context.Context,
	meta RequestMeta,
	idempotencyKey string,
	input CreateEnvironmentInput,
) (*domain.Environment, *domain.ProvisioningOperation, error) {
	if err := s.validateCreate(&input); err != nil {
		return nil, nil, err
	}

	var (
		env *domain.Environment
		op  *domain.ProvisioningOperation
	)
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		tenant, err := s.tenants.GetByID(txCtx, input.TenantID)
		if err != nil {
			return fmt.Errorf("get tenant: %w", err)
		}
		if tenant == nil {
			return ErrTenantNotFound
		}

		env = &domain.Environment{
			ID:                uuid.NewString(),
			TenantID:          tenant.ID,
			Cloud:             "aws",
			Region:            input.Region,
			Engine:            "emr_on_eks",
			ProvisioningMode:  input.ProvisioningMode,
			Status:            domain.EnvironmentStatusProvisioning,
			CustomerRoleARN:   input.CustomerRoleARN,
			EKSClusterARN:     input.EKSClusterARN,
			EKSNamespace:      input.EKSNamespace,
			WarmPoolEnabled:   input.WarmPoolEnabled,
			MaxConcurrentRuns: input.Quotas.MaxConcurrentRuns,
			MaxVCPU:           input.Quotas.MaxVCPU,
			MaxRunSeconds:     input.Quotas.MaxRunSeconds,
		}
		if err := s.envs.Insert(txCtx, env); err != nil {
			return fmt.Errorf("insert environment: %w", err)
		}

		op = &domain.ProvisioningOperation{
			ID:             uuid.NewString(),
			EnvironmentID:  env.ID,
			State:          domain.ProvisioningStateQueued,
			Step:           domain.ProvisioningStateQueued,
			Message:        "Queued for provisioning.",
			LogsURI:        fmt.Sprintf("s3://sparkpilot-ops/provisioning/%s/%s.log", env.ID, uuid.NewString()),
			StartedAt:      s.now().UTC(),
			IdempotencyKey: idempotencyKey,
		}
		if err := s.ops.Insert(txCtx, op); err != nil {
			return fmt.Errorf("insert provisioning operation: %w", err)
		}

		return s.audit.Write(txCtx, &domain.AuditEvent{
			TenantID:   env.TenantID,
			Actor:      meta.Actor,
			Action:     "environment.create",
			SourceIP:   meta.SourceIP,
			EntityType: "environment",
			EntityID:   env.ID,
			Details: map[string]any{
				"region":              env.Region,
				"provisioning_mode":   env.ProvisioningMode,
				"eks_cluster_arn":     env.EKSClusterARN,
				"eks_namespace":       env.EKSNamespace,
				"warm_pool_enabled":   env.WarmPoolEnabled,
				"max_concurrent_runs": env.MaxConcurrentRuns,
				"max_vcpu":            env.MaxVCPU,
				"max_run_seconds":     env.MaxRunSeconds,
			},
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return env, op, nil
}

func (s *EnvironmentService) Get(ctx context.Context, id string) (*domain.Environment, error) {
	env, err := s.envs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get environment: %w", err)
	}
	if env == nil {
		return nil, ErrEnvironmentNotFound
	}
	return env, nil
}

func (s *EnvironmentService) List(ctx context.Context, tenantID string) ([]*domain.Environment, error) {
	envs, err := s.envs.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	return envs, nil
}

func (s *EnvironmentService) GetOperation(ctx context.Context, id string) (*domain.ProvisioningOperation, error) {
	op, err := s.ops.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get provisioning operation: %w", err)
	}
	if op == nil {
		return nil, ErrOperationNotFound
	}
	return op, nil
}
