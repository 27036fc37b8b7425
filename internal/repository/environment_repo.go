package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

const environmentColumns = `
	id, tenant_id, cloud, region, engine, provisioning_mode, status,
	customer_role_arn, eks_cluster_arn, eks_namespace, emr_virtual_cluster_id,
	warm_pool_enabled, max_concurrent_runs, max_vcpu, max_run_seconds,
	created_at, updated_at
`

type environmentRepository struct {
	db *sql.DB
}

func NewEnvironmentRepository(db *sql.DB) service.EnvironmentRepository {
	return &environmentRepository{db: db}
}

func (r *environmentRepository) Insert(ctx context.Context, env *domain.Environment) error {
	query := `
		INSERT INTO environments (
			id, tenant_id, cloud, region, engine, provisioning_mode, status,
			customer_role_arn, eks_cluster_arn, eks_namespace, emr_virtual_cluster_id,
			warm_pool_enabled, max_concurrent_runs, max_vcpu, max_run_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`
	return scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{
		env.ID,
		env.TenantID,
		env.Cloud,
		env.Region,
		env.Engine,
		env.ProvisioningMode,
		env.Status,
		env.CustomerRoleARN,
		nullString(env.EKSClusterARN),
		nullString(env.EKSNamespace),
		nullString(env.EMRVirtualClusterID),
		env.WarmPoolEnabled,
		env.MaxConcurrentRuns,
		env.MaxVCPU,
		env.MaxRunSeconds,
	}, &env.CreatedAt, &env.UpdatedAt)
}

func (r *environmentRepository) GetByID(ctx context.Context, id string) (*domain.Environment, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments WHERE id = $1`
	row := executorFrom(ctx, r.db).QueryRowContext(ctx, query, id)
	env, err := scanEnvironment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (r *environmentRepository) List(ctx context.Context, tenantID string) ([]*domain.Environment, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = $1`
		args = append(args, tenantID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := executorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var envs []*domain.Environment
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

func (r *environmentRepository) Update(ctx context.Context, env *domain.Environment) error {
	query := `
		UPDATE environments
		SET status = $2,
			eks_cluster_arn = $3,
			eks_namespace = $4,
			emr_virtual_cluster_id = $5,
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := executorFrom(ctx, r.db).ExecContext(ctx, query,
		env.ID,
		env.Status,
		nullString(env.EKSClusterARN),
		nullString(env.EKSNamespace),
		nullString(env.EMRVirtualClusterID),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvironment(row rowScanner) (*domain.Environment, error) {
	env := &domain.Environment{}
	var eksClusterARN, eksNamespace, virtualClusterID sql.NullString
	err := row.Scan(
		&env.ID,
		&env.TenantID,
		&env.Cloud,
		&env.Region,
		&env.Engine,
		&env.ProvisioningMode,
		&env.Status,
		&env.CustomerRoleARN,
		&eksClusterARN,
		&eksNamespace,
		&virtualClusterID,
		&env.WarmPoolEnabled,
		&env.MaxConcurrentRuns,
		&env.MaxVCPU,
		&env.MaxRunSeconds,
		&env.CreatedAt,
		&env.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	env.EKSClusterARN = eksClusterARN.String
	env.EKSNamespace = eksNamespace.String
	env.EMRVirtualClusterID = virtualClusterID.String
	return env, nil
}
