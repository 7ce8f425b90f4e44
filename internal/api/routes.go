package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecks holds the dependency probes for /health and /ready. A nil
// probe is treated as "not configured" and skipped.
type HealthChecks struct {
	Database   func(ctx context.Context) error
	Redis      func(ctx context.Context) error
	Classifier func(ctx context.Context) error
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, handler *Handler, checks HealthChecks, registry *prometheus.Registry) {
	// Health and readiness checks
	router.GET("/health", healthHandler())
	router.GET("/ready", readyHandler(checks))

	// Prometheus metrics
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Confession endpoints
		confessions := v1.Group("/confessions")
		{
			confessions.POST("", handler.SubmitConfession) // POST /api/v1/confessions
			confessions.GET("", handler.ListConfessions)   // GET  /api/v1/confessions
			confessions.GET("/:id", handler.GetConfession) // GET  /api/v1/confessions/:id
		}

		// Publishing endpoints
		publish := v1.Group("/publish")
		{
			publish.POST("/:confession_id", handler.EnqueuePublish) // POST   /api/v1/publish/:confession_id
			publish.GET("/jobs", handler.ListJobs)                  // GET    /api/v1/publish/jobs
			publish.GET("/jobs/:id", handler.GetJob)                // GET    /api/v1/publish/jobs/:id
			publish.DELETE("/jobs/:id", handler.CancelJob)          // DELETE /api/v1/publish/jobs/:id
		}

		// Statistics endpoints
		stats := v1.Group("/stats")
		{
			stats.GET("", handler.GetStats)              // GET /api/v1/stats
			stats.GET("/recent", handler.GetRecentPosts) // GET /api/v1/stats/recent
		}
	}
}

// healthHandler reports process liveness only.
func healthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}

// readyHandler reports dependency readiness. The database is required;
// Redis and the classifier only degrade the report.
func readyHandler(checks HealthChecks) gin.HandlerFunc {
	type probe struct {
		name     string
		check    func(ctx context.Context) error
		required bool
	}
	probes := []probe{
		{"database", checks.Database, true},
		{"redis", checks.Redis, false},
		{"classifier", checks.Classifier, false},
	}

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		overall := "ready"
		results := gin.H{}
		for _, p := range probes {
			if p.check == nil {
				continue
			}
			if err := p.check(ctx); err != nil {
				results[p.name] = err.Error()
				if p.required {
					status = http.StatusServiceUnavailable
					overall = "not_ready"
				} else if overall == "ready" {
					overall = "degraded"
				}
				continue
			}
			results[p.name] = "ok"
		}

		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}
