package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type idempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) service.IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) GetByScopeAndKey(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT id, scope, key, fingerprint, response_json, status_code,
			resource_type, resource_id, created_at
		FROM idempotency_records
		WHERE scope = $1 AND key = $2
	`
	record := &domain.IdempotencyRecord{}
	var resourceType, resourceID sql.NullString
	err := scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{scope, key},
		&record.ID,
		&record.Scope,
		&record.Key,
		&record.Fingerprint,
		&record.ResponseJSON,
		&record.StatusCode,
		&resourceType,
		&resourceID,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record.ResourceType = resourceType.String
	record.ResourceID = resourceID.String
	return record, nil
}

func (r *idempotencyRepository) Insert(ctx context.Context, record *domain.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (
			id, scope, key, fingerprint, response_json, status_code,
			resource_type, resource_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{
		record.ID,
		record.Scope,
		record.Key,
		record.Fingerprint,
		record.ResponseJSON,
		record.StatusCode,
		nullString(record.ResourceType),
		nullString(record.ResourceID),
	}, &record.CreatedAt)
}
