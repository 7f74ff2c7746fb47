// Package api provides the HTTP API for the bosun server.
package api

import (
	"github.com/MacJediWizard/bosun/internal/api/handlers"
	"github.com/MacJediWizard/bosun/internal/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds configuration for the API router.
type Config struct {
	// AdminUsername and AdminPassword protect the /admin routes.
	AdminUsername string
	AdminPassword string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		RateLimitRequests: 100,
		RateLimitPeriod:   "1m",
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies. gatherer serves
// the /metrics endpoint; pass the registry the metric set was registered on.
func NewRouter(
	cfg Config,
	orchestrator handlers.Orchestrator,
	gatherer prometheus.Gatherer,
	logger zerolog.Logger,
) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Public endpoints
	healthHandler := handlers.NewHealthHandler(logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	versionHandler := handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate, logger)
	versionHandler.RegisterPublicRoutes(r.Engine)

	if gatherer != nil {
		r.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Admin API (basic auth required)
	admin := r.Engine.Group("/admin")
	admin.Use(middleware.BasicAuth(cfg.AdminUsername, cfg.AdminPassword, logger))

	deploymentsHandler := handlers.NewDeploymentsHandler(orchestrator, logger)
	deploymentsHandler.RegisterRoutes(admin)

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
