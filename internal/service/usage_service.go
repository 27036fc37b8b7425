package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sparkpilot/sparkpilot/internal/domain"
)

type UsageService struct {
	tenants TenantRepository
	usage   UsageRecordRepository
	now     func() time.Time
}

func NewUsageService(tenants TenantRepository, usage UsageRecordRepository) *UsageService {
	return &UsageService{tenants: tenants, usage: usage, now: time.Now}
}

// WithClock overrides the wall clock for tests.
func (s *UsageService) WithClock(now func() time.Time) *UsageService {
	s.now = now
	return s
}

type UsageReport struct {
	TenantID string
	From     time.Time
	To       time.Time
	Items    []*domain.UsageRecord
}

// GetUsage returns the tenant's usage records inside the window, bounds
// inclusive. Defaults: to=now, from=to-30d.
func (s *UsageService) GetUsage(ctx context.Context, tenantID string, from, to *time.Time) (*UsageReport, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}

	effectiveTo := s.now().UTC()
	if to != nil {
		effectiveTo = to.UTC()
	}
	effectiveFrom := effectiveTo.Add(-30 * 24 * time.Hour)
	if from != nil {
		effectiveFrom = from.UTC()
	}

	items, err := s.usage.ListByTenant(ctx, tenantID, effectiveFrom, effectiveTo)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	return &UsageReport{
		TenantID: tenantID,
		From:     effectiveFrom,
		To:       effectiveTo,
		Items:    items,
	}, nil
}
