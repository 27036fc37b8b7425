package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/engine"
)

func newScheduler(s *memStore, adapter *fakeAdapter) *SchedulerService {
	return NewSchedulerService(
		&memRunRepo{s: s},
		&memJobRepo{s: s},
		&memEnvironmentRepo{s: s},
		adapter,
		NewAuditWriter(&memAuditRepo{s: s}),
		noopTx{},
		nil,
	)
}

func TestSchedulerDispatchesQueuedRun(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateQueued)
	fixed := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc := newScheduler(store, &fakeAdapter{}).WithClock(func() time.Time { return fixed })

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	require.Equal(t, domain.RunStateAccepted, run.State)
	require.NotNil(t, run.StartedAt)
	require.Equal(t, fixed, *run.StartedAt)
	require.Equal(t, "jr-test00000001", run.EMRJobRunID)
	require.Equal(t, "/sparkpilot/runs/env-1", run.LogGroup)
	require.Equal(t, "run-1/attempt-1", run.LogStreamPrefix)
	require.NotEmpty(t, run.DriverLogURI)
	require.NotEmpty(t, run.SparkUIURI)

	require.Equal(t, []string{"run.dispatched"}, store.auditActions())
	event := store.audits[0]
	require.Equal(t, ActorScheduler, event.Actor)
	require.Equal(t, "req-1", event.AWSRequestID)
	require.Equal(t, "jr-test00000001", event.Details["emr_job_run_id"])
}

func TestSchedulerSkipsEngineForCancelledRun(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateQueued)
	run.CancellationRequested = true

	starts := 0
	adapter := &fakeAdapter{
		startFn: func(context.Context, *domain.Environment, *domain.Job, *domain.Run) (*engine.Dispatch, error) {
			starts++
			return nil, errors.New("must not be called")
		},
	}
	svc := newScheduler(store, adapter)

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Zero(t, starts)
	require.Equal(t, domain.RunStateCancelled, run.State)
	require.NotNil(t, run.EndedAt)
	require.Empty(t, store.audits)
}

func TestSchedulerMarksDispatchFailure(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateQueued)
	adapter := &fakeAdapter{
		startFn: func(context.Context, *domain.Environment, *domain.Job, *domain.Run) (*engine.Dispatch, error) {
			return nil, errors.New("ThrottlingException: rate exceeded")
		},
	}
	svc := newScheduler(store, adapter)

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	require.Equal(t, domain.RunStateFailed, run.State)
	require.Contains(t, run.ErrorMessage, "ThrottlingException")
	require.NotNil(t, run.EndedAt)
	require.Equal(t, []string{"run.dispatch_failed"}, store.auditActions())
	require.Equal(t, run.ErrorMessage, store.audits[0].Details["error"])
}

func TestSchedulerMissingJobFailsRun(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	run := seedRun(store, "run-1", "job-orphan", "env-1", domain.RunStateQueued)
	svc := newScheduler(store, &fakeAdapter{})

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, domain.RunStateFailed, run.State)
	require.Contains(t, run.ErrorMessage, "job or environment missing")
}

func TestSchedulerRespectsBatchOrder(t *testing.T) {
	store := newMemStore()
	seedRunFixture(store)
	first := seedRun(store, "run-1", "job-1", "env-1", domain.RunStateQueued)
	second := seedRun(store, "run-2", "job-1", "env-1", domain.RunStateQueued)
	seedRun(store, "run-3", "job-1", "env-1", domain.RunStateSucceeded)
	svc := newScheduler(store, &fakeAdapter{})

	processed, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, processed)
	require.Equal(t, domain.RunStateAccepted, first.State)
	require.Equal(t, domain.RunStateAccepted, second.State)
}
