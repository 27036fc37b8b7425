package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkpilot/sparkpilot/internal/handler/dto"
	"github.com/sparkpilot/sparkpilot/internal/pkg/response"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type JobHandler struct {
	svc  *service.JobService
	idem *service.IdempotencyCoordinator
}

func NewJobHandler(svc *service.JobService, idem *service.IdempotencyCoordinator) *JobHandler {
	return &JobHandler{svc: svc, idem: idem}
}

// Create handles POST /v1/jobs.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	meta := requestMeta(c)
	executeIdempotent(c, h.idem, "POST:/v1/jobs", req, func(ctx context.Context) (*service.CommandOutcome, error) {
		job, err := h.svc.Create(ctx, meta, req.Input())
		if err != nil {
			return nil, err
		}
		return &service.CommandOutcome{
			StatusCode:   http.StatusCreated,
			Body:         dto.FromJob(job),
			ResourceType: "job",
			ResourceID:   job.ID,
		}, nil
	})
}
