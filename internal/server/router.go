// Package server wires middleware and routes onto a gin engine.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkpilot/sparkpilot/internal/config"
	"github.com/sparkpilot/sparkpilot/internal/handler"
	"github.com/sparkpilot/sparkpilot/internal/server/middleware"
)

// SetupRouter configures middleware and registers every route.
func SetupRouter(r *gin.Engine, h *handler.Handlers, cfg *config.Config) *gin.Engine {
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORSOriginList()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/tenants", h.Tenant.Create)

		v1.POST("/environments", h.Environment.Create)
		v1.GET("/environments", h.Environment.List)
		v1.GET("/environments/:id", h.Environment.Get)
		v1.GET("/provisioning-operations/:id", h.Environment.GetOperation)

		v1.POST("/jobs", h.Job.Create)
		v1.POST("/jobs/:job_id/runs", h.Run.Create)

		v1.GET("/runs", h.Run.List)
		v1.GET("/runs/:id", h.Run.Get)
		v1.POST("/runs/:id/cancel", h.Run.Cancel)
		v1.GET("/runs/:id/logs", h.Run.Logs)

		v1.GET("/usage", h.Usage.Get)
	}

	return r
}
