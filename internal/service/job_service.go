package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
)

var (
	ErrJobNotFound        = infraerrors.NotFound("JOB_NOT_FOUND", "Job not found.")
	ErrEnvironmentDeleted = infraerrors.Conflict("ENVIRONMENT_DELETED", "Environment is deleted.")
)

type JobRepository interface {
	Insert(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
}

type JobService struct {
	jobs  JobRepository
	envs  EnvironmentRepository
	audit *AuditWriter
	tx    TxRunner
}

func NewJobService(jobs JobRepository, envs EnvironmentRepository, audit *AuditWriter, tx TxRunner) *JobService {
	return &JobService{jobs: jobs, envs: envs, audit: audit, tx: tx}
}

type CreateJobInput struct {
	EnvironmentID    string
	Name             string
	ArtifactURI      string
	ArtifactDigest   string
	Entrypoint       string
	Args             []string
	SparkConf        map[string]string
	RetryMaxAttempts int
	TimeoutSeconds   int
}

func validateJobInput(input *CreateJobInput) error {
	if input.RetryMaxAttempts == 0 {
		input.RetryMaxAttempts = 1
	}
	if input.TimeoutSeconds == 0 {
		input.TimeoutSeconds = 7200
	}
	switch {
	case len(input.Name) < 1 || len(input.Name) > 255:
		return infraerrors.UnprocessableEntity("JOB_NAME_INVALID", "name must be between 1 and 255 characters.")
	case len(input.ArtifactURI) < 3 || len(input.ArtifactURI) > 2048:
		return infraerrors.UnprocessableEntity("ARTIFACT_URI_INVALID", "artifact_uri must be between 3 and 2048 characters.")
	case len(input.ArtifactDigest) < 6 || len(input.ArtifactDigest) > 255:
		return infraerrors.UnprocessableEntity("ARTIFACT_DIGEST_INVALID", "artifact_digest must be between 6 and 255 characters.")
	case len(input.Entrypoint) < 1 || len(input.Entrypoint) > 1024:
		return infraerrors.UnprocessableEntity("ENTRYPOINT_INVALID", "entrypoint must be between 1 and 1024 characters.")
	case input.RetryMaxAttempts < 1 || input.RetryMaxAttempts > 10:
		return infraerrors.UnprocessableEntity("RETRY_MAX_ATTEMPTS_INVALID", "retry_max_attempts must be between 1 and 10.")
	case input.TimeoutSeconds < 60 || input.TimeoutSeconds > 172800:
		return infraerrors.UnprocessableEntity("TIMEOUT_SECONDS_INVALID", "timeout_seconds must be between 60 and 172800.")
	}
	return nil
}

func (s *JobService) Create(ctx context.Context, meta RequestMeta, input CreateJobInput) (*domain.Job, error) {
	if err := validateJobInput(&input); err != nil {
		return nil, err
	}
	if input.Args == nil {
		input.Args = []string{}
	}
	if input.SparkConf == nil {
		input.SparkConf = map[string]string{}
	}

	var job *domain.Job
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		env, err := s.envs.GetByID(txCtx, input.EnvironmentID)
		if err != nil {
			return fmt.Errorf("get environment: %w", err)
		}
		if env == nil {
			return ErrEnvironmentNotFound
		}
		if env.Status == domain.EnvironmentStatusDeleted {
			return ErrEnvironmentDeleted
		}

		job = &domain.Job{
			ID:               uuid.NewString(),
			EnvironmentID:    env.ID,
			Name:             input.Name,
			ArtifactURI:      input.ArtifactURI,
			ArtifactDigest:   input.ArtifactDigest,
			Entrypoint:       input.Entrypoint,
			Args:             input.Args,
			SparkConf:        input.SparkConf,
			RetryMaxAttempts: input.RetryMaxAttempts,
			TimeoutSeconds:   input.TimeoutSeconds,
		}
		if err := s.jobs.Insert(txCtx, job); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return s.audit.Write(txCtx, &domain.AuditEvent{
			TenantID:   env.TenantID,
			Actor:      meta.Actor,
			Action:     "job.create",
			SourceIP:   meta.SourceIP,
			EntityType: "job",
			EntityID:   job.ID,
			Details: map[string]any{
				"name":            job.Name,
				"artifact_uri":    job.ArtifactURI,
				"artifact_digest": job.ArtifactDigest,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}
