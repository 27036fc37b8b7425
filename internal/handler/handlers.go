// Package handler exposes the REST surface over the control services.
package handler

import (
	"github.com/sparkpilot/sparkpilot/internal/service"
)

// Handlers bundles the per-entity handlers for route registration.
type Handlers struct {
	Tenant      *TenantHandler
	Environment *EnvironmentHandler
	Job         *JobHandler
	Run         *RunHandler
	Usage       *UsageHandler
}

func New(
	tenants *service.TenantService,
	environments *service.EnvironmentService,
	jobs *service.JobService,
	runs *service.RunService,
	usage *service.UsageService,
	idem *service.IdempotencyCoordinator,
) *Handlers {
	return &Handlers{
		Tenant:      NewTenantHandler(tenants, idem),
		Environment: NewEnvironmentHandler(environments, idem),
		Job:         NewJobHandler(jobs, idem),
		Run:         NewRunHandler(runs, idem),
		Usage:       NewUsageHandler(usage),
	}
}
