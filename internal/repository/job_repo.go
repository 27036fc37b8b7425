package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) service.JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Insert(ctx context.Context, job *domain.Job) error {
	argsJSON, err := jsonbValue(job.Args)
	if err != nil {
		return err
	}
	confJSON, err := jsonbValue(job.SparkConf)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO jobs (
			id, environment_id, name, artifact_uri, artifact_digest, entrypoint,
			args_json, spark_conf_json, retry_max_attempts, timeout_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{
		job.ID,
		job.EnvironmentID,
		job.Name,
		job.ArtifactURI,
		job.ArtifactDigest,
		job.Entrypoint,
		argsJSON,
		confJSON,
		job.RetryMaxAttempts,
		job.TimeoutSeconds,
	}, &job.CreatedAt, &job.UpdatedAt)
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `
		SELECT id, environment_id, name, artifact_uri, artifact_digest, entrypoint,
			args_json, spark_conf_json, retry_max_attempts, timeout_seconds,
			created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	job := &domain.Job{}
	var argsJSON, confJSON []byte
	err := scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{id},
		&job.ID,
		&job.EnvironmentID,
		&job.Name,
		&job.ArtifactURI,
		&job.ArtifactDigest,
		&job.Entrypoint,
		&argsJSON,
		&confJSON,
		&job.RetryMaxAttempts,
		&job.TimeoutSeconds,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := jsonbScan(argsJSON, &job.Args); err != nil {
		return nil, err
	}
	if err := jsonbScan(confJSON, &job.SparkConf); err != nil {
		return nil, err
	}
	return job, nil
}
