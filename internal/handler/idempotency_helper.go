package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/sparkpilot/sparkpilot/internal/pkg/response"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

const replayHeader = "X-Idempotent-Replay"

func requestMeta(c *gin.Context) service.RequestMeta {
	actor := c.GetHeader("X-Actor")
	if actor == "" {
		actor = "anonymous"
	}
	return service.RequestMeta{Actor: actor, SourceIP: c.ClientIP()}
}

// executeIdempotent wraps a mutating handler with the idempotency guard:
// the Idempotency-Key header is required, replays carry the replay marker
// header, and the stored body is served verbatim.
func executeIdempotent(
	c *gin.Context,
	coordinator *service.IdempotencyCoordinator,
	scope string,
	payload any,
	execute func(ctx context.Context) (*service.CommandOutcome, error),
) {
	result, err := coordinator.Execute(c.Request.Context(), scope, c.GetHeader("Idempotency-Key"), payload, execute)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	if result.Replayed {
		c.Header(replayHeader, "true")
	}
	response.RawJSON(c, result.StatusCode, result.Body)
}
