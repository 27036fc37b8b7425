package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/sparkpilot/sparkpilot/internal/domain"
)

type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}

// AuditWriter appends audit events. It joins whatever transaction the ctx
// carries, so a failing command rolls back its audit trail with it.
type AuditWriter struct {
	repo AuditRepository
}

func NewAuditWriter(repo AuditRepository) *AuditWriter {
	return &AuditWriter{repo: repo}
}

func (w *AuditWriter) Write(ctx context.Context, event *domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Actor == "" {
		event.Actor = "anonymous"
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}
	return w.repo.Insert(ctx, event)
}
