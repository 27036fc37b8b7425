package service

import (
	"context"
	"fmt"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
)

// QuotaChecker enforces per-environment admission limits before a run is
// persisted. The check is not serialized against concurrent admissions;
// overshoot by one is accepted and bounded by the command transaction.
type QuotaChecker struct {
	runs RunRepository
}

func NewQuotaChecker(runs RunRepository) *QuotaChecker {
	return &QuotaChecker{runs: runs}
}

func (q *QuotaChecker) Admit(ctx context.Context, env *domain.Environment, requested domain.RequestedResources) error {
	active, err := q.runs.ListActiveByEnvironment(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("list active runs: %w", err)
	}
	if len(active) >= env.MaxConcurrentRuns {
		return infraerrors.TooManyRequests("RUN_CONCURRENCY_QUOTA",
			fmt.Sprintf("Concurrent run limit reached (%d).", env.MaxConcurrentRuns))
	}
	activeVCPU := 0
	for _, run := range active {
		activeVCPU += run.RequestedResources.TotalVCPU()
	}
	if activeVCPU+requested.TotalVCPU() > env.MaxVCPU {
		return infraerrors.TooManyRequests("RUN_VCPU_QUOTA",
			fmt.Sprintf("vCPU quota exceeded (%d).", env.MaxVCPU))
	}
	return nil
}
