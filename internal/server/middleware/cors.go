package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/sparkpilot/sparkpilot/internal/pkg/logger"
)

var corsWarningOnce sync.Once

// CORS allows the configured origins to call the API from a browser.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowedSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
			continue
		}
		if origin != "" {
			allowedSet[origin] = struct{}{}
		}
	}

	corsWarningOnce.Do(func() {
		if !allowAll && len(allowedSet) == 0 {
			logger.L().Warn("cors origins not configured; cross-origin requests will be rejected")
		}
	})

	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		allowed := allowAll
		if origin != "" && !allowAll {
			_, allowed = allowedSet[origin]
		}

		if origin != "" && allowed {
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key, X-Actor, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Idempotent-Replay, X-Request-ID")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
