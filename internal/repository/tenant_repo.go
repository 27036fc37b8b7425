package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type tenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) service.TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Insert(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (id, name)
		VALUES ($1, $2)
		RETURNING created_at, updated_at
	`
	return scanSingleRow(ctx, executorFrom(ctx, r.db), query,
		[]any{tenant.ID, tenant.Name},
		&tenant.CreatedAt, &tenant.UpdatedAt,
	)
}

func (r *tenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	return r.scanOne(ctx, query, id)
}

func (r *tenantRepository) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM tenants
		WHERE name = $1
	`
	return r.scanOne(ctx, query, name)
}

func (r *tenantRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Tenant, error) {
	tenant := &domain.Tenant{}
	err := scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{arg},
		&tenant.ID, &tenant.Name, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}
