package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"groundedtheory.dev/core/internal/http/handler"
	"groundedtheory.dev/core/internal/http/middleware"
	"groundedtheory.dev/core/internal/ratelimit"
)

// Config tunes which middleware the router mounts. IsProduction gates
// gin's own ReleaseMode elsewhere (cmd/server); this struct only carries
// what routing itself needs.
type Config struct {
	RateLimiter     ratelimit.Limiter
	ChatWindow      time.Duration
	ChatMaxRequests int
	HealthCheckDeps func(ctx context.Context) map[string]bool
}

// Setup mounts the background-task API surface behind the tenancy and
// rate-limit middleware. The full REST/auth/RBAC layer this sits behind in
// production lives in the upstream gateway; these routes cover the
// orchestrator's enqueue/poll contract.
func Setup(r *gin.Engine, theoryHandler *handler.TheoryHandler, codingHandler *handler.CodingHandler, cfg Config) {
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())

	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok"}
		if cfg.HealthCheckDeps != nil {
			deps := cfg.HealthCheckDeps(c.Request.Context())
			status["dependencies"] = deps
			for _, ok := range deps {
				if !ok {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "dependencies": deps})
					return
				}
			}
		}
		c.JSON(http.StatusOK, status)
	})

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Tenancy())
	if cfg.RateLimiter != nil {
		v1.Use(middleware.RateLimit(cfg.RateLimiter, ratelimit.NamespaceChat, cfg.ChatWindow, cfg.ChatMaxRequests))
	}
	{
		v1.POST("/projects/:project_id/theory", theoryHandler.GenerateTheory)
		v1.GET("/tasks/:task_id", theoryHandler.TaskStatus)
		v1.POST("/interviews/:interview_id/auto-code", codingHandler.AutoCode)
	}
}
