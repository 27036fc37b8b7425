package repository

import (
	"context"
	"database/sql"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) service.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Insert(ctx context.Context, event *domain.AuditEvent) error {
	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := jsonbValue(details)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO audit_events (
			id, tenant_id, actor, action, source_ip, entity_type, entity_id,
			details_json, aws_request_id, cloudtrail_event_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	return scanSingleRow(ctx, executorFrom(ctx, r.db), query, []any{
		event.ID,
		nullString(event.TenantID),
		event.Actor,
		event.Action,
		nullString(event.SourceIP),
		event.EntityType,
		event.EntityID,
		detailsJSON,
		nullString(event.AWSRequestID),
		nullString(event.CloudTrailEventID),
	}, &event.CreatedAt)
}
