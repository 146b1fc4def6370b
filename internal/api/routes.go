// Package api provides the HTTP API for the hiveguard server.
package api

import (
	"fmt"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/api/handlers"
	"github.com/MacJediWizard/hiveguard/internal/api/middleware"
	"github.com/MacJediWizard/hiveguard/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds configuration for the API router.
type Config struct {
	// InboundRateLimit is the number of inbound authority requests allowed per period.
	InboundRateLimit int64
	// InboundRateLimitPeriod is the window for InboundRateLimit.
	InboundRateLimitPeriod time.Duration
	// MaxBodyBytes caps request bodies. Zero uses the middleware default.
	MaxBodyBytes int64
	// Version information for the version endpoint.
	Version     string
	Commit      string
	BuildDate   string
	HostVersion string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		InboundRateLimit:       60,
		InboundRateLimitPeriod: time.Minute,
		MaxBodyBytes:           middleware.DefaultMaxBodyBytes,
		Version:                "dev",
		Commit:                 "unknown",
		BuildDate:              "unknown",
		HostVersion:            "17.0",
	}
}

// Dependencies are the services the router dispatches to.
type Dependencies struct {
	Access        *access.Service
	Authenticator *auth.Authenticator
	Sessions      *auth.SessionStore
	// Redis backs the rate limiter when set. Nil uses an in-memory store.
	Redis redis.UniversalClient
	// HealthChecks are probed by GET /health. Nil entries are skipped.
	HealthChecks map[string]handlers.Pinger
	Gatherer     prometheus.Gatherer
	// StateRefresher updates state gauges before a scrape. May be nil.
	StateRefresher handlers.StateRefresher
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Dependencies, logger zerolog.Logger) (*Router, error) {
	if deps.Access == nil || deps.Authenticator == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("router: access service, authenticator and session store are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = middleware.DefaultMaxBodyBytes
	}

	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.SecurityHeaders(cfg.MaxBodyBytes))

	// Public endpoints
	handlers.NewHealthHandler(deps.HealthChecks, logger).RegisterPublicRoutes(r.Engine)
	if deps.Gatherer != nil {
		handlers.NewMetricsHandler(deps.Gatherer, deps.StateRefresher).RegisterPublicRoutes(r.Engine)
	}
	handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate, cfg.HostVersion).RegisterPublicRoutes(r.Engine)

	// Inbound commands from the remote authority
	rateLimiter, err := middleware.NewRateLimiter(cfg.InboundRateLimit, cfg.InboundRateLimitPeriod, deps.Redis)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	inbound := r.Engine.Group("/smarthive_client")
	inbound.Use(rateLimiter)
	inbound.Use(middleware.ClientAuth(deps.Access, logger))
	handlers.NewClientHandler(deps.Access, cfg.HostVersion, logger).RegisterRoutes(inbound)

	sessionAuth := middleware.SessionAuth(deps.Sessions, deps.Authenticator, logger)

	// Add-on routes for signed-in users. Not gated: the banner and the
	// local unblock action must stay reachable while blocked.
	addon := r.Engine.Group("/smarthive_client")
	addon.Use(sessionAuth)
	handlers.NewAddonHandler(deps.Access, logger).RegisterRoutes(addon)

	// API v1
	apiV1 := r.Engine.Group("/api/v1")
	authHandler := handlers.NewAuthHandler(deps.Authenticator, deps.Sessions, logger)
	authHandler.RegisterPublicRoutes(apiV1)

	session := apiV1.Group("")
	session.Use(sessionAuth)
	authHandler.RegisterRoutes(session)

	gated := session.Group("")
	gated.Use(middleware.AccessGate(deps.Access))
	authHandler.RegisterGatedRoutes(gated)

	admin := gated.Group("")
	admin.Use(middleware.RequireSystemAdmin())
	handlers.NewConfigsHandler(deps.Access, logger).RegisterRoutes(admin)

	r.logger.Debug().Int("routes", len(r.Engine.Routes())).Msg("routes registered")
	return r, nil
}
