package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/sparkpilot/sparkpilot/internal/domain"
)

var runColumnNames = []string{
	"id", "job_id", "environment_id", "state", "attempt", "idempotency_key",
	"requested_resources_json", "args_overrides_json", "spark_conf_overrides_json",
	"timeout_seconds", "emr_job_run_id", "cancellation_requested",
	"log_group", "log_stream_prefix", "driver_log_uri", "spark_ui_uri",
	"error_message", "started_at", "ended_at", "created_at", "updated_at",
}

func runRow(rows *sqlmock.Rows, id, state string, at time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, "job-1", "env-1", state, 1, "key-"+id,
		[]byte(`{"driver_vcpu":1,"driver_memory_gb":4,"executor_vcpu":2,"executor_memory_gb":8,"executor_instances":2}`),
		[]byte(`["--input","s3://data/in"]`),
		[]byte(`{}`),
		7200, nil, false,
		nil, nil, nil, nil,
		nil, nil, nil, at, at,
	)
}

func TestRunRepositoryInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO runs`).
		WithArgs("run-1", "job-1", "env-1", domain.RunStateQueued, 1, "key-1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 7200).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	repo := NewRunRepository(db)
	run := &domain.Run{
		ID:             "run-1",
		JobID:          "job-1",
		EnvironmentID:  "env-1",
		State:          domain.RunStateQueued,
		Attempt:        1,
		IdempotencyKey: "key-1",
		RequestedResources: domain.RequestedResources{
			DriverVCPU: 1, DriverMemoryGB: 4, ExecutorVCPU: 2, ExecutorMemoryGB: 8, ExecutorInstances: 2,
		},
		ArgsOverrides:      []string{"--input", "s3://data/in"},
		SparkConfOverrides: map[string]string{},
		TimeoutSeconds:     7200,
	}
	require.NoError(t, repo.Insert(context.Background(), run))
	require.Equal(t, now, run.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryGetByIDScansJSONB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(runRow(sqlmock.NewRows(runColumnNames), "run-1", domain.RunStateQueued, now))

	repo := NewRunRepository(db)
	run, err := repo.GetByID(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, 2, run.RequestedResources.ExecutorInstances)
	require.Equal(t, []string{"--input", "s3://data/in"}, run.ArgsOverrides)
	require.Empty(t, run.EMRJobRunID)
	require.Nil(t, run.StartedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryListQueued(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(runColumnNames)
	runRow(rows, "run-1", domain.RunStateQueued, now)
	runRow(rows, "run-2", domain.RunStateQueued, now.Add(time.Second))
	mock.ExpectQuery(`SELECT .+ FROM runs\s+WHERE state = \$1\s+ORDER BY created_at ASC\s+LIMIT \$2`).
		WithArgs(domain.RunStateQueued, 20).
		WillReturnRows(rows)

	repo := NewRunRepository(db)
	runs, err := repo.ListQueued(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-1", runs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryListEngineActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM runs\s+WHERE state = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{domain.RunStateAccepted, domain.RunStateRunning}), 20).
		WillReturnRows(runRow(sqlmock.NewRows(runColumnNames), "run-1", domain.RunStateAccepted, now))

	repo := NewRunRepository(db)
	runs, err := repo.ListEngineActive(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	startedAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE runs`).
		WithArgs("run-1", domain.RunStateAccepted, "jr-1", false,
			"/sparkpilot/runs/env-1", "run-1/attempt-1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			startedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRunRepository(db)
	run := &domain.Run{
		ID:              "run-1",
		State:           domain.RunStateAccepted,
		EMRJobRunID:     "jr-1",
		LogGroup:        "/sparkpilot/runs/env-1",
		LogStreamPrefix: "run-1/attempt-1",
		StartedAt:       &startedAt,
	}
	require.NoError(t, repo.Update(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}
