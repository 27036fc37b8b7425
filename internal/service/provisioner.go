package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sparkpilot/sparkpilot/internal/config"
	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/engine"
	"github.com/sparkpilot/sparkpilot/internal/pkg/logger"
)

// validatedVPCEndpoints is the endpoint set the full provisioning path
// reports in its success audit.
var validatedVPCEndpoints = []string{
	"ec2", "ecr.api", "ecr.dkr", "s3", "logs", "sts", "eks", "eks-auth", "elasticloadbalancing",
}

// ProvisionerService advances queued ProvisioningOperations to ready or
// failed. Each pass commits once for the whole batch.
type ProvisionerService struct {
	ops     ProvisioningOperationRepository
	envs    EnvironmentRepository
	adapter engine.Adapter
	audit   *AuditWriter
	tx      TxRunner

	interval time.Duration
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

func NewProvisionerService(
	ops ProvisioningOperationRepository,
	envs EnvironmentRepository,
	adapter engine.Adapter,
	audit *AuditWriter,
	tx TxRunner,
	cfg *config.Config,
) *ProvisionerService {
	interval := 15 * time.Second
	if cfg != nil && cfg.PollIntervalSeconds > 0 {
		interval = cfg.PollInterval()
	}
	return &ProvisionerService{
		ops:      ops,
		envs:     envs,
		adapter:  adapter,
		audit:    audit,
		tx:       tx,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// WithClock overrides the wall clock for tests.
func (s *ProvisionerService) WithClock(now func() time.Time) *ProvisionerService {
	s.now = now
	return s
}

func (s *ProvisionerService) Start() {
	s.startOnce.Do(func() {
		logger.L().Info("provisioner started", zap.Duration("interval", s.interval))
		go s.runLoop()
	})
}

func (s *ProvisionerService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		logger.L().Info("provisioner stopped")
	})
}

func (s *ProvisionerService) runLoop() {
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

func (s *ProvisionerService) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	processed, err := s.RunOnce(ctx)
	if err != nil {
		logger.L().Error("provisioner pass failed", zap.Error(err))
		return
	}
	if processed > 0 {
		logger.L().Info("provisioner pass done", zap.Int("processed", processed))
	}
}

// RunOnce processes every pending operation and reports how many it touched.
// Per-item failures mark the operation and environment failed and do not
// abort the batch.
func (s *ProvisionerService) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		pending, err := s.ops.ListPending(txCtx)
		if err != nil {
			return fmt.Errorf("list pending operations: %w", err)
		}
		for _, op := range pending {
			env, err := s.envs.GetByID(txCtx, op.EnvironmentID)
			if err != nil {
				return fmt.Errorf("get environment: %w", err)
			}
			if env == nil {
				continue
			}
			if provErr := s.provision(txCtx, env, op); provErr != nil {
				if markErr := s.markFailed(txCtx, env, op, provErr); markErr != nil {
					return markErr
				}
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

func (s *ProvisionerService) provision(ctx context.Context, env *domain.Environment, op *domain.ProvisioningOperation) error {
	if !strings.HasPrefix(env.CustomerRoleARN, "arn:aws:iam::") {
		return errors.New("Invalid customer role ARN.")
	}
	if env.ProvisioningMode == domain.ProvisioningModeBYOCLite {
		return s.provisionBYOCLite(ctx, env, op)
	}
	return s.provisionFull(ctx, env, op)
}

// provisionBYOCLite only registers a virtual cluster against the customer's
// existing EKS cluster and namespace.
func (s *ProvisionerService) provisionBYOCLite(ctx context.Context, env *domain.Environment, op *domain.ProvisioningOperation) error {
	op.State = domain.ProvisioningStateValidatingRuntime
	op.Step = domain.ProvisioningStateValidatingRuntime
	op.Message = "Validating BYOC-Lite runtime."
	if env.EKSClusterARN == "" {
		return errors.New("Missing eks_cluster_arn for BYOC-Lite.")
	}
	if env.EKSNamespace == "" {
		return errors.New("Missing eks_namespace for BYOC-Lite.")
	}
	if env.EMRVirtualClusterID == "" {
		virtualClusterID, err := s.adapter.CreateVirtualCluster(ctx, env)
		if err != nil {
			return err
		}
		env.EMRVirtualClusterID = virtualClusterID
	}

	env.Status = domain.EnvironmentStatusReady
	endedAt := s.now().UTC()
	op.State = domain.ProvisioningStateReady
	op.Step = domain.ProvisioningStateReady
	op.Message = "BYOC-Lite environment ready."
	op.EndedAt = &endedAt
	if err := s.envs.Update(ctx, env); err != nil {
		return fmt.Errorf("update environment: %w", err)
	}
	if err := s.ops.Update(ctx, op); err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	return s.audit.Write(ctx, &domain.AuditEvent{
		TenantID:   env.TenantID,
		Actor:      ActorProvisioner,
		Action:     "environment.byoc_lite_provisioned",
		EntityType: "environment",
		EntityID:   env.ID,
		Details: map[string]any{
			"eks_cluster_arn":        env.EKSClusterARN,
			"eks_namespace":          env.EKSNamespace,
			"emr_virtual_cluster_id": env.EMRVirtualClusterID,
		},
	})
}

// provisionFull walks the fixed step sequence, then binds a managed cluster
// ARN and virtual cluster id to the environment.
func (s *ProvisionerService) provisionFull(ctx context.Context, env *domain.Environment, op *domain.ProvisioningOperation) error {
	for _, step := range domain.ProvisioningSteps {
		op.State = step
		op.Step = step
		op.Message = step + " complete."
	}

	env.EKSClusterARN = fmt.Sprintf("arn:aws:eks:%s:000000000000:cluster/sparkpilot-%s", env.Region, shortEnvID(env.ID))
	env.EMRVirtualClusterID = "vc-" + randomHexID(10)
	env.Status = domain.EnvironmentStatusReady

	endedAt := s.now().UTC()
	op.State = domain.ProvisioningStateReady
	op.Step = domain.ProvisioningStateReady
	op.Message = "Environment provisioning complete."
	op.EndedAt = &endedAt
	if err := s.envs.Update(ctx, env); err != nil {
		return fmt.Errorf("update environment: %w", err)
	}
	if err := s.ops.Update(ctx, op); err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	return s.audit.Write(ctx, &domain.AuditEvent{
		TenantID:   env.TenantID,
		Actor:      ActorProvisioner,
		Action:     "environment.provisioned",
		EntityType: "environment",
		EntityID:   env.ID,
		Details: map[string]any{
			"eks_cluster_arn":         env.EKSClusterARN,
			"emr_virtual_cluster_id":  env.EMRVirtualClusterID,
			"validated_vpc_endpoints": validatedVPCEndpoints,
		},
	})
}

func (s *ProvisionerService) markFailed(ctx context.Context, env *domain.Environment, op *domain.ProvisioningOperation, cause error) error {
	env.Status = domain.EnvironmentStatusFailed
	endedAt := s.now().UTC()
	op.State = domain.ProvisioningStateFailed
	op.Step = domain.ProvisioningStateFailed
	op.Message = cause.Error()
	op.EndedAt = &endedAt
	if err := s.envs.Update(ctx, env); err != nil {
		return fmt.Errorf("update environment: %w", err)
	}
	if err := s.ops.Update(ctx, op); err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	return s.audit.Write(ctx, &domain.AuditEvent{
		TenantID:   env.TenantID,
		Actor:      ActorProvisioner,
		Action:     "environment.provisioning_failed",
		EntityType: "environment",
		EntityID:   env.ID,
		Details:    map[string]any{"error": cause.Error()},
	})
}

func shortEnvID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func randomHexID(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(hex) {
		n = len(hex)
	}
	return hex[:n]
}
