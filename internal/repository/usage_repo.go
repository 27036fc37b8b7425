package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type usageRecordRepository struct {
	db *sql.DB
}

func NewUsageRecordRepository(db *sql.DB) service.UsageRecordRepository {
	return &usageRecordRepository{db: db}
}

func (r *usageRecordRepository) Insert(ctx context.Context, record *domain.UsageRecord) error {
	query := `
		INSERT INTO usage_records (
			id, tenant_id, run_id, vcpu_seconds, memory_gb_seconds, estimated_cost_usd_micros
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING recorded_at
	`
	return scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{
		record.ID,
		record.TenantID,
		record.RunID,
		record.VCPUSeconds,
		record.MemoryGBSeconds,
		record.EstimatedCostUSDMicros,
	}, &record.RecordedAt)
}

func (r *usageRecordRepository) GetByRunID(ctx context.Context, runID string) (*domain.UsageRecord, error) {
	query := `
		SELECT id, tenant_id, run_id, vcpu_seconds, memory_gb_seconds,
			estimated_cost_usd_micros, recorded_at
		FROM usage_records
		WHERE run_id = $1
	`
	record := &domain.UsageRecord{}
	err := scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{runID},
		&record.ID,
		&record.TenantID,
		&record.RunID,
		&record.VCPUSeconds,
		&record.MemoryGBSeconds,
		&record.EstimatedCostUSDMicros,
		&record.RecordedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListByTenant returns usage recorded inside the inclusive [from, to] window.
func (r *usageRecordRepository) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.UsageRecord, error) {
	query := `
		SELECT id, tenant_id, run_id, vcpu_seconds, memory_gb_seconds,
			estimated_cost_usd_micros, recorded_at
		FROM usage_records
		WHERE tenant_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC
	`
	rows, err := executorFrom(ctx, r.db).QueryContext(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.UsageRecord
	for rows.Next() {
		record := &domain.UsageRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.TenantID,
			&record.RunID,
			&record.VCPUSeconds,
			&record.MemoryGBSeconds,
			&record.EstimatedCostUSDMicros,
			&record.RecordedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
