package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkpilot/sparkpilot/internal/handler/dto"
	"github.com/sparkpilot/sparkpilot/internal/pkg/response"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type TenantHandler struct {
	svc  *service.TenantService
	idem *service.IdempotencyCoordinator
}

func NewTenantHandler(svc *service.TenantService, idem *service.IdempotencyCoordinator) *TenantHandler {
	return &TenantHandler{svc: svc, idem: idem}
}

// Create handles POST /v1/tenants.
func (h *TenantHandler) Create(c *gin.Context) {
	var req dto.TenantCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	meta := requestMeta(c)
	executeIdempotent(c, h.idem, "POST:/v1/tenants", req, func(ctx context.Context) (*service.CommandOutcome, error) {
		tenant, err := h.svc.Create(ctx, meta, req.Input())
		if err != nil {
			return nil, err
		}
		return &service.CommandOutcome{
			StatusCode:   http.StatusCreated,
			Body:         dto.FromTenant(tenant),
			ResourceType: "tenant",
			ResourceID:   tenant.ID,
		}, nil
	})
}
