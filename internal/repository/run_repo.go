package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

const runColumns = `
	id, job_id, environment_id, state, attempt, idempotency_key,
	requested_resources_json, args_overrides_json, spark_conf_overrides_json,
	timeout_seconds, emr_job_run_id, cancellation_requested,
	log_group, log_stream_prefix, driver_log_uri, spark_ui_uri,
	error_message, started_at, ended_at, created_at, updated_at
`

type runRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) service.RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Insert(ctx context.Context, run *domain.Run) error {
	resourcesJSON, err := jsonbValue(run.RequestedResources)
	if err != nil {
		return err
	}
	argsJSON, err := jsonbValue(run.ArgsOverrides)
	if err != nil {
		return err
	}
	confJSON, err := jsonbValue(run.SparkConfOverrides)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO runs (
			id, job_id, environment_id, state, attempt, idempotency_key,
			requested_resources_json, args_overrides_json, spark_conf_overrides_json,
			timeout_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{
		run.ID,
		run.JobID,
		run.EnvironmentID,
		run.State,
		run.Attempt,
		run.IdempotencyKey,
		resourcesJSON,
		argsJSON,
		confJSON,
		run.TimeoutSeconds,
	}, &run.CreatedAt, &run.UpdatedAt)
}

func (r *runRepository) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	row := executorFrom(ctx, r.db).QueryRowContext(ctx, query, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRepository) GetByJobAndKey(ctx context.Context, jobID, idempotencyKey string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE job_id = $1 AND idempotency_key = $2`
	row := executorFrom(ctx, r.db).QueryRowContext(ctx, query, jobID, idempotencyKey)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRepository) List(ctx context.Context, tenantID, state string) ([]*domain.Run, error) {
	query := `
		SELECT ` + prefixColumns("r.", runColumns) + `
		FROM runs r
		JOIN environments e ON e.id = r.environment_id
		WHERE ($1 = '' OR e.tenant_id = $1)
			AND ($2 = '' OR r.state = $2)
		ORDER BY r.created_at DESC
	`
	return r.queryRuns(ctx, query, tenantID, state)
}

// ListActiveByEnvironment returns runs holding quota on the environment.
func (r *runRepository) ListActiveByEnvironment(ctx context.Context, environmentID string) ([]*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE environment_id = $1 AND state = ANY($2)
	`
	return r.queryRuns(ctx, query, environmentID, pq.Array(domain.ActiveRunStates))
}

// ListQueued returns dispatchable runs, oldest first.
func (r *runRepository) ListQueued(ctx context.Context, limit int) ([]*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE state = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.queryRuns(ctx, query, domain.RunStateQueued, limit)
}

// ListEngineActive returns runs the reconciler must poll, least recently
// touched first.
func (r *runRepository) ListEngineActive(ctx context.Context, limit int) ([]*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE state = ANY($1)
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.queryRuns(ctx, query, pq.Array([]string{domain.RunStateAccepted, domain.RunStateRunning}), limit)
}

func (r *runRepository) Update(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE runs
		SET state = $2,
			emr_job_run_id = $3,
			cancellation_requested = $4,
			log_group = $5,
			log_stream_prefix = $6,
			driver_log_uri = $7,
			spark_ui_uri = $8,
			error_message = $9,
			started_at = $10,
			ended_at = $11,
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := executorFrom(ctx, r.db).ExecContext(ctx, query,
		run.ID,
		run.State,
		nullString(run.EMRJobRunID),
		run.CancellationRequested,
		nullString(run.LogGroup),
		nullString(run.LogStreamPrefix),
		nullString(run.DriverLogURI),
		nullString(run.SparkUIURI),
		nullString(run.ErrorMessage),
		nullTime(run.StartedAt),
		nullTime(run.EndedAt),
	)
	return err
}

func (r *runRepository) queryRuns(ctx context.Context, query string, args ...any) ([]*domain.Run, error) {
	rows, err := executorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (*domain.Run, error) {
	run := &domain.Run{}
	var resourcesJSON, argsJSON, confJSON []byte
	var emrJobRunID, logGroup, logStreamPrefix, driverLogURI, sparkUIURI, errorMessage sql.NullString
	var startedAt, endedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.JobID,
		&run.EnvironmentID,
		&run.State,
		&run.Attempt,
		&run.IdempotencyKey,
		&resourcesJSON,
		&argsJSON,
		&confJSON,
		&run.TimeoutSeconds,
		&emrJobRunID,
		&run.CancellationRequested,
		&logGroup,
		&logStreamPrefix,
		&driverLogURI,
		&sparkUIURI,
		&errorMessage,
		&startedAt,
		&endedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := jsonbScan(resourcesJSON, &run.RequestedResources); err != nil {
		return nil, err
	}
	if err := jsonbScan(argsJSON, &run.ArgsOverrides); err != nil {
		return nil, err
	}
	if err := jsonbScan(confJSON, &run.SparkConfOverrides); err != nil {
		return nil, err
	}
	run.EMRJobRunID = emrJobRunID.String
	run.LogGroup = logGroup.String
	run.LogStreamPrefix = logStreamPrefix.String
	run.DriverLogURI = driverLogURI.String
	run.SparkUIURI = sparkUIURI.String
	run.ErrorMessage = errorMessage.String
	run.StartedAt = timePtr(startedAt)
	run.EndedAt = timePtr(endedAt)
	return run, nil
}
