package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparkpilot/sparkpilot/internal/handler/dto"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
	"github.com/sparkpilot/sparkpilot/internal/pkg/response"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

type UsageHandler struct {
	svc *service.UsageService
}

func NewUsageHandler(svc *service.UsageService) *UsageHandler {
	return &UsageHandler{svc: svc}
}

// Get handles GET /v1/usage?tenant_id&from_ts&to_ts.
func (h *UsageHandler) Get(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		response.ErrorFrom(c, infraerrors.UnprocessableEntity("TENANT_ID_REQUIRED", "tenant_id is required."))
		return
	}
	from, err := parseTimestamp(c.Query("from_ts"))
	if err != nil {
		response.ErrorFrom(c, infraerrors.UnprocessableEntity("FROM_TS_INVALID", "from_ts must be an RFC 3339 timestamp."))
		return
	}
	to, err := parseTimestamp(c.Query("to_ts"))
	if err != nil {
		response.ErrorFrom(c, infraerrors.UnprocessableEntity("TO_TS_INVALID", "to_ts must be an RFC 3339 timestamp."))
		return
	}

	report, err := h.svc.GetUsage(c.Request.Context(), tenantID, from, to)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, dto.FromUsageReport(report))
}

func parseTimestamp(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
