package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sparkpilot/sparkpilot/internal/domain"
)

// Placeholder rate card in USD micros per unit-second.
const (
	vcpuSecondRateMicros     = 35
	memoryGBSecondRateMicros = 4
)

type UsageRecordRepository interface {
	Insert(ctx context.Context, record *domain.UsageRecord) error
	GetByRunID(ctx context.Context, runID string) (*domain.UsageRecord, error)
	ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.UsageRecord, error)
}

// UsageRecorder writes exactly one UsageRecord per terminal run. Re-running
// it on an already-billed run is a silent no-op.
type UsageRecorder struct {
	usage UsageRecordRepository
}

func NewUsageRecorder(usage UsageRecordRepository) *UsageRecorder {
	return &UsageRecorder{usage: usage}
}

func (r *UsageRecorder) Record(ctx context.Context, env *domain.Environment, run *domain.Run) error {
	existing, err := r.usage.GetByRunID(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("lookup usage record: %w", err)
	}
	if existing != nil {
		return nil
	}

	var durationSeconds int64
	if run.StartedAt != nil && run.EndedAt != nil {
		durationSeconds = int64(run.EndedAt.Sub(*run.StartedAt).Seconds())
		if durationSeconds < 0 {
			durationSeconds = 0
		}
	}
	vcpuSeconds := durationSeconds * int64(run.RequestedResources.TotalVCPU())
	memoryGBSeconds := durationSeconds * int64(run.RequestedResources.TotalMemoryGB())

	return r.usage.Insert(ctx, &domain.UsageRecord{
		ID:                     uuid.NewString(),
		TenantID:               env.TenantID,
		RunID:                  run.ID,
		VCPUSeconds:            vcpuSeconds,
		MemoryGBSeconds:        memoryGBSeconds,
		EstimatedCostUSDMicros: vcpuSeconds*vcpuSecondRateMicros + memoryGBSeconds*memoryGBSecondRateMicros,
	})
}
