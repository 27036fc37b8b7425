package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

const provisioningColumns = `
	id, environment_id, state, step, message, logs_uri,
	started_at, ended_at, idempotency_key, created_at, updated_at
`

type provisioningOperationRepository struct {
	db *sql.DB
}

func NewProvisioningOperationRepository(db *sql.DB) service.ProvisioningOperationRepository {
	return &provisioningOperationRepository{db: db}
}

func (r *provisioningOperationRepository) Insert(ctx context.Context, op *domain.ProvisioningOperation) error {
	query := `
		INSERT INTO provisioning_operations (
			id, environment_id, state, step, message, logs_uri, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING started_at, created_at, updated_at
	`
	return scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{
		op.ID,
		op.EnvironmentID,
		op.State,
		op.Step,
		nullString(op.Message),
		nullString(op.LogsURI),
		op.IdempotencyKey,
	}, &op.StartedAt, &op.CreatedAt, &op.UpdatedAt)
}

func (r *provisioningOperationRepository) GetByID(ctx context.Context, id string) (*domain.ProvisioningOperation, error) {
	query := `SELECT ` + provisioningColumns + ` FROM provisioning_operations WHERE id = $1`
	row := executorFrom(ctx, r.db).QueryRowContext(ctx, query, id)
	op, err := scanProvisioningOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// ListPending returns operations still queued or mid-step, oldest first.
func (r *provisioningOperationRepository) ListPending(ctx context.Context) ([]*domain.ProvisioningOperation, error) {
	states := append([]string{domain.ProvisioningStateQueued}, domain.ProvisioningSteps...)
	query := `
		SELECT ` + provisioningColumns + `
		FROM provisioning_operations
		WHERE state = ANY($1)
		ORDER BY created_at ASC
	`
	rows, err := executorFrom(ctx, r.db).QueryContext(ctx, query, pq.Array(states))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []*domain.ProvisioningOperation
	for rows.Next() {
		op, err := scanProvisioningOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (r *provisioningOperationRepository) Update(ctx context.Context, op *domain.ProvisioningOperation) error {
	query := `
		UPDATE provisioning_operations
		SET state = $2,
			step = $3,
			message = $4,
			ended_at = $5,
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := executorFrom(ctx, r.db).ExecContext(ctx, query,
		op.ID,
		op.State,
		op.Step,
		nullString(op.Message),
		nullTime(op.EndedAt),
	)
	return err
}

func scanProvisioningOperation(row rowScanner) (*domain.ProvisioningOperation, error) {
	op := &domain.ProvisioningOperation{}
	var message, logsURI sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(
		&op.ID,
		&op.EnvironmentID,
		&op.State,
		&op.Step,
		&message,
		&logsURI,
		&op.StartedAt,
		&endedAt,
		&op.IdempotencyKey,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	op.Message = message.String
	op.LogsURI = logsURI.String
	op.EndedAt = timePtr(endedAt)
	return op, nil
}
