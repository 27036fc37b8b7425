package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
)

func newEnvironmentService(s *memStore) *EnvironmentService {
	return NewEnvironmentService(
		&memTenantRepo{s: s},
		&memEnvironmentRepo{s: s},
		&memProvisioningRepo{s: s},
		NewAuditWriter(&memAuditRepo{s: s}),
		noopTx{},
	)
}

func TestEnvironmentCreateAppliesDefaults(t *testing.T) {
	store := newMemStore()
	seedTenant(store, "t-1", "acme")
	fixed := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc := newEnvironmentService(store).WithClock(func() time.Time { return fixed })

	env, op, err := svc.Create(context.Background(), RequestMeta{Actor: "ops@acme"}, "env-key-1",
		CreateEnvironmentInput{
			TenantID:        "t-1",
			CustomerRoleARN: "arn:aws:iam::123456789012:role/SparkPilotCustomer",
		})
	require.NoError(t, err)

	require.Equal(t, "aws", env.Cloud)
	require.Equal(t, "us-east-1", env.Region)
	require.Equal(t, "emr_on_eks", env.Engine)
	require.Equal(t, domain.ProvisioningModeFull, env.ProvisioningMode)
	require.Equal(t, domain.EnvironmentStatusProvisioning, env.Status)
	require.Equal(t, 10, env.MaxConcurrentRuns)
	require.Equal(t, 256, env.MaxVCPU)
	require.Equal(t, 7200, env.MaxRunSeconds)

	require.Equal(t, env.ID, op.EnvironmentID)
	require.Equal(t, domain.ProvisioningStateQueued, op.State)
	require.Equal(t, "Queued for provisioning.", op.Message)
	require.Equal(t, "env-key-1", op.IdempotencyKey)
	require.Equal(t, fixed, op.StartedAt)
	require.True(t, strings.HasPrefix(op.LogsURI, "s3://sparkpilot-ops/provisioning/"+env.ID+"/"))
	require.Nil(t, op.EndedAt)

	require.Equal(t, []string{"environment.create"}, store.auditActions())
	require.Equal(t, "full", store.audits[0].Details["provisioning_mode"])
}

func TestEnvironmentCreateByocLiteRequiresClusterFields(t *testing.T) {
	store := newMemStore()
	seedTenant(store, "t-1", "acme")
	svc := newEnvironmentService(store)
	ctx := context.Background()
	base := CreateEnvironmentInput{
		TenantID:         "t-1",
		ProvisioningMode: domain.ProvisioningModeBYOCLite,
		CustomerRoleARN:  "arn:aws:iam::123456789012:role/SparkPilotCustomer",
	}

	_, _, err := svc.Create(ctx, RequestMeta{}, "k1", base)
	require.ErrorIs(t, err, ErrEKSClusterARNMissing)

	withARN := base
	withARN.EKSClusterARN = "arn:aws:eks:us-east-1:123456789012:cluster/customer"
	_, _, err = svc.Create(ctx, RequestMeta{}, "k2", withARN)
	require.ErrorIs(t, err, ErrEKSNamespaceMissing)

	withARN.EKSNamespace = "spark-jobs"
	env, _, err := svc.Create(ctx, RequestMeta{}, "k3", withARN)
	require.NoError(t, err)
	require.Equal(t, domain.ProvisioningModeBYOCLite, env.ProvisioningMode)
}

func TestEnvironmentCreateValidation(t *testing.T) {
	store := newMemStore()
	seedTenant(store, "t-1", "acme")
	svc := newEnvironmentService(store)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, RequestMeta{}, "k1", CreateEnvironmentInput{
		TenantID:         "t-1",
		ProvisioningMode: "managed",
		CustomerRoleARN:  "arn:aws:iam::123456789012:role/X",
	})
	require.Equal(t, "PROVISIONING_MODE_INVALID", infraerrors.Reason(err))

	_, _, err = svc.Create(ctx, RequestMeta{}, "k2", CreateEnvironmentInput{TenantID: "t-1"})
	require.Equal(t, "CUSTOMER_ROLE_ARN_REQUIRED", infraerrors.Reason(err))

	_, _, err = svc.Create(ctx, RequestMeta{}, "k3", CreateEnvironmentInput{
		TenantID:        "t-1",
		CustomerRoleARN: "arn:aws:iam::123456789012:role/X",
		Quotas:          domain.EnvironmentQuotas{MaxRunSeconds: 30},
	})
	require.Equal(t, "QUOTAS_INVALID", infraerrors.Reason(err))
	require.Equal(t, http.StatusUnprocessableEntity, infraerrors.Code(err))

	_, _, err = svc.Create(ctx, RequestMeta{}, "k4", CreateEnvironmentInput{
		TenantID:        "t-missing",
		CustomerRoleARN: "arn:aws:iam::123456789012:role/X",
	})
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestEnvironmentGetAndOperationLookup(t *testing.T) {
	store := newMemStore()
	seedTenant(store, "t-1", "acme")
	svc := newEnvironmentService(store)
	ctx := context.Background()

	env, op, err := svc.Create(ctx, RequestMeta{}, "k1", CreateEnvironmentInput{
		TenantID:        "t-1",
		CustomerRoleARN: "arn:aws:iam::123456789012:role/X",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, env.ID)
	require.NoError(t, err)
	require.Equal(t, env.ID, got.ID)

	gotOp, err := svc.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, op.ID, gotOp.ID)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrEnvironmentNotFound)
	_, err = svc.GetOperation(ctx, "missing")
	require.ErrorIs(t, err, ErrOperationNotFound)
}
