package httpops

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/config"
	"github.com/osokin/go-group-warden/internal/policy"
)

// ReadyCheck reports whether one backing dependency is usable. Readiness
// fails when any registered check errors.
type ReadyCheck func(ctx context.Context) error

// RegisterRoutes attaches all middleware and endpoints to the Gin engine.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, policies *policy.Repository, cfg config.Config, checks map[string]ReadyCheck) {
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(RequestID())
	r.Use(Logger())
	r.Use(Recovery())
	r.Use(Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		failures := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failures": failures})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	rl := NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	api := r.Group("/api/v1", rl.Handler())
	api.GET("/groups/:id/policy", getPolicy(policies))
	api.GET("/groups/:id/restrictions", listRestrictions(db))
}

// NewServer builds the ops HTTP server with the configured timeouts.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.OpsPort,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
