package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sparkpilot/sparkpilot/internal/domain"
)

func newReconciler(s *memStore, adapter *fakeAdapter) *ReconcilerService {
	return NewReconcilerService(
		&memRunRepo{s: s},
		&memEnvironmentRepo{s: s},
		NewUsageRecorder(&memUsageRepo{s: s}),
		adapter,
		NewAuditWriter(&memAuditRepo{s: s}),
		noopTx{},
		nil,
	)
}

func TestReconcilerMirrorsRunningState(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateAccepted)
	run.EMRJobRunID = "jr-1"
	svc := newReconciler(store, &fakeAdapter{
		describeFn: func(context.Context, *domain.Environment, *domain.Run) (string, string, error) {
			return domain.EngineStateRunning, "", nil
		},
	})

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, domain.RunStateRunning, run.State)
	require.Nil(t, run.EndedAt)
	require.Nil(t, store.usage[run.ID], "non-terminal transitions are not billed")

	require.Equal(t, []string{"run.reconciled"}, store.auditActions())
	details := store.audits[0].Details
	require.Equal(t, domain.EngineStateRunning, details["emr_state"])
	require.Equal(t, domain.RunStateRunning, details["state"])
}

func TestReconcilerCompletedRunIsBilled(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateRunning)
	run.EMRJobRunID = "jr-1"
	startedAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	run.StartedAt = &startedAt
	fixed := startedAt.Add(100 * time.Second)
	svc := newReconciler(store, &fakeAdapter{
		describeFn: func(context.Context, *domain.Environment, *domain.Run) (string, string, error) {
			return domain.EngineStateCompleted, "", nil
		},
	}).WithClock(func() time.Time { return fixed })

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunStateSucceeded, run.State)
	require.NotNil(t, run.EndedAt)
	require.Equal(t, fixed, *run.EndedAt)

	// Default shape: 5 vCPU and 20 GB total over 100 seconds.
	record := store.usage[run.ID]
	require.NotNil(t, record)
	require.Equal(t, "t-1", record.TenantID)
	require.EqualValues(t, 500, record.VCPUSeconds)
	require.EqualValues(t, 2000, record.MemoryGBSeconds)
	require.EqualValues(t, 500*35+2000*4, record.EstimatedCostUSDMicros)
}

func TestReconcilerFailedRunCarriesErrorMessage(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateRunning)
	run.EMRJobRunID = "jr-1"
	svc := newReconciler(store, &fakeAdapter{
		describeFn: func(context.Context, *domain.Environment, *domain.Run) (string, string, error) {
			return domain.EngineStateFailed, "Driver pod OOMKilled", nil
		},
	})

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunStateFailed, run.State)
	require.Equal(t, "Driver pod OOMKilled", run.ErrorMessage)
	require.NotNil(t, store.usage[run.ID])
}

func TestReconcilerTimesOutOverdueRun(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateRunning)
	run.EMRJobRunID = "jr-1"
	run.TimeoutSeconds = 60
	fixed := time.Date(2026, 2, 1, 9, 10, 0, 0, time.UTC)
	startedAt := fixed.Add(-10 * time.Minute)
	run.StartedAt = &startedAt
	adapter := &fakeAdapter{}
	svc := newReconciler(store, adapter).WithClock(func() time.Time { return fixed })

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	require.Equal(t, domain.RunStateTimedOut, run.State)
	require.Equal(t, "Run exceeded timeout_seconds.", run.ErrorMessage)
	require.True(t, run.CancellationRequested)
	require.NotNil(t, run.EndedAt)
	require.Equal(t, fixed, *run.EndedAt)
	require.Equal(t, 1, adapter.cancelCalls)

	require.NotNil(t, store.usage[run.ID])
	require.Equal(t, []string{"run.timeout_cancel.dispatched", "run.timed_out"}, store.auditActions())
	require.Equal(t, "req-cancel", store.audits[0].AWSRequestID)
}

func TestReconcilerTimeoutWithoutRemoteID(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateAccepted)
	run.TimeoutSeconds = 60
	fixed := time.Date(2026, 2, 1, 9, 10, 0, 0, time.UTC)
	startedAt := fixed.Add(-time.Hour)
	run.StartedAt = &startedAt
	adapter := &fakeAdapter{}
	svc := newReconciler(store, adapter).WithClock(func() time.Time { return fixed })

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunStateTimedOut, run.State)
	require.Zero(t, adapter.cancelCalls, "nothing to cancel without a remote id")
	require.Equal(t, []string{"run.timed_out"}, store.auditActions())
}

func TestReconcilerPropagatesCancellation(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateRunning)
	run.EMRJobRunID = "jr-1"
	run.CancellationRequested = true
	adapter := &fakeAdapter{
		describeFn: func(context.Context, *domain.Environment, *domain.Run) (string, string, error) {
			return domain.EngineStateCancelled, "", nil
		},
	}
	svc := newReconciler(store, adapter)

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, adapter.cancelCalls)
	require.Equal(t, domain.RunStateCancelled, run.State)
	require.Equal(t, []string{"run.cancel.dispatched", "run.reconciled"}, store.auditActions())
}

func TestReconcilerDescribeFailureLeavesRunUntouched(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateAccepted)
	run.EMRJobRunID = "jr-1"
	svc := newReconciler(store, &fakeAdapter{
		describeFn: func(context.Context, *domain.Environment, *domain.Run) (string, string, error) {
			return "", "", errors.New("connection reset")
		},
	})

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, domain.RunStateAccepted, run.State, "run is re-picked next pass")
	require.Nil(t, store.usage[run.ID])
	require.Empty(t, store.audits)
}

func TestReconcilerSkipsRunsWithMissingEnvironment(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-gone", domain.RunStateAccepted)
	svc := newReconciler(store, &fakeAdapter{})

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, processed)
	require.Equal(t, domain.RunStateAccepted, run.State)
}
