package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sparkpilot/sparkpilot/internal/handler/dto"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
	"github.com/sparkpilot/sparkpilot/internal/pkg/response"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

const (
	defaultLogLimit = 200
	maxLogLimit     = 2000
)

type RunHandler struct {
	svc  *service.RunService
	idem *service.IdempotencyCoordinator
}

func NewRunHandler(svc *service.RunService, idem *service.IdempotencyCoordinator) *RunHandler {
	return &RunHandler{svc: svc, idem: idem}
}

// Create handles POST /v1/jobs/:job_id/runs.
func (h *RunHandler) Create(c *gin.Context) {
	jobID := c.Param("job_id")
	var req dto.RunCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	meta := requestMeta(c)
	key := c.GetHeader("Idempotency-Key")
	scope := fmt.Sprintf("POST:/v1/jobs/%s/runs", jobID)
	executeIdempotent(c, h.idem, scope, req, func(ctx context.Context) (*service.CommandOutcome, error) {
		run, err := h.svc.Create(ctx, meta, jobID, key, req.Input())
		if err != nil {
			return nil, err
		}
		return &service.CommandOutcome{
			StatusCode:   http.StatusCreated,
			Body:         dto.FromRun(run),
			ResourceType: "run",
			ResourceID:   run.ID,
		}, nil
	})
}

// Cancel handles POST /v1/runs/:id/cancel.
func (h *RunHandler) Cancel(c *gin.Context) {
	runID := c.Param("id")
	meta := requestMeta(c)
	scope := fmt.Sprintf("POST:/v1/runs/%s/cancel", runID)
	payload := map[string]any{"run_id": runID}
	executeIdempotent(c, h.idem, scope, payload, func(ctx context.Context) (*service.CommandOutcome, error) {
		run, err := h.svc.Cancel(ctx, meta, runID)
		if err != nil {
			return nil, err
		}
		return &service.CommandOutcome{
			StatusCode:   http.StatusOK,
			Body:         dto.FromRun(run),
			ResourceType: "run",
			ResourceID:   run.ID,
		}, nil
	})
}

// Get handles GET /v1/runs/:id.
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, dto.FromRun(run))
}

// List handles GET /v1/runs with optional tenant_id and state filters.
func (h *RunHandler) List(c *gin.Context) {
	runs, err := h.svc.List(c.Request.Context(), c.Query("tenant_id"), c.Query("state"))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, dto.FromRuns(runs))
}

// Logs handles GET /v1/runs/:id/logs?limit=200.
func (h *RunHandler) Logs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxLogLimit {
			response.ErrorFrom(c, infraerrors.UnprocessableEntity("LOG_LIMIT_INVALID", "limit must be between 1 and 2000."))
			return
		}
		limit = parsed
	}
	logs, err := h.svc.Logs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, dto.FromRunLogs(logs))
}
