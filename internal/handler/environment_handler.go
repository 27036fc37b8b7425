package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkpilot/sparkpilot/internal/handler/dto"
	"github.com/sparkpilot/sparkpilot/internal/pkg/response"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type EnvironmentHandler struct {
	svc  *service.EnvironmentService
	idem *service.IdempotencyCoordinator
}

func NewEnvironmentHandler(svc *service.EnvironmentService, idem *service.IdempotencyCoordinator) *EnvironmentHandler {
	return &EnvironmentHandler{svc: svc, idem: idem}
}

// Create handles POST /v1/environments. The response body is the queued
// ProvisioningOperation, not the environment.
func (h *EnvironmentHandler) Create(c *gin.Context) {
	var req dto.EnvironmentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	meta := requestMeta(c)
	key := c.GetHeader("Idempotency-Key")
	executeIdempotent(c, h.idem, "POST:/v1/environments", req, func(ctx context.Context) (*service.CommandOutcome, error) {
		_, op, err := h.svc.Create(ctx, meta, key, req.Input())
		if err != nil {
			return nil, err
		}
		return &service.CommandOutcome{
			StatusCode:   http.StatusCreated,
			Body:         dto.FromOperation(op),
			ResourceType: "provisioning_operation",
			ResourceID:   op.ID,
		}, nil
	})
}

// Get handles GET /v1/environments/:id.
func (h *EnvironmentHandler) Get(c *gin.Context) {
	env, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, dto.FromEnvironment(env))
}

// List handles GET /v1/environments with an optional tenant_id filter.
func (h *EnvironmentHandler) List(c *gin.Context) {
	envs, err := h.svc.List(c.Request.Context(), c.Query("tenant_id"))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, dto.FromEnvironments(envs))
}

// GetOperation handles GET /v1/provisioning-operations/:id.
func (h *EnvironmentHandler) GetOperation(c *gin.Context) {
	op, err := h.svc.GetOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, dto.FromOperation(op))
}
