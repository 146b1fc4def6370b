// Package main is the entrypoint for the hiveguard server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/api"
	"github.com/MacJediWizard/hiveguard/internal/api/handlers"
	"github.com/MacJediWizard/hiveguard/internal/app"
	"github.com/MacJediWizard/hiveguard/internal/auth"
	"github.com/MacJediWizard/hiveguard/internal/config"
	"github.com/MacJediWizard/hiveguard/internal/httpclient"
	"github.com/MacJediWizard/hiveguard/internal/metrics"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/MacJediWizard/hiveguard/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg := config.LoadServerConfig()

	// Initialize logger
	logger := app.NewLogger(cfg, Version)
	logger.Info().
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("storage", string(cfg.StorageDriver)).
		Msg("Starting hiveguard server")

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	// Open storage
	storage, err := app.OpenStorage(ctx, cfg, true, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open storage")
		return 1
	}
	defer storage.Close()

	// Redis is optional; without it rate limits and heartbeat locks stay in-process
	var redisClient redis.UniversalClient
	if client, err := app.OpenRedis(ctx, cfg.RedisURL, logger); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory rate limits and no heartbeat locks")
	} else if client != nil {
		redisClient = client
		defer client.Close()
	}

	// Outbound HTTP client for the remote authority
	if cfg.Proxy.HasProxy() {
		logger.Info().Str("proxy", httpclient.Describe(&cfg.Proxy)).Msg("Using outbound proxy")
	}
	httpClient, err := httpclient.New(httpclient.Options{
		Timeout:   remote.Timeout,
		Proxy:     &cfg.Proxy,
		UserAgent: "hiveguard/" + Version,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to configure outbound HTTP client")
		return 1
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := metrics.NewPrometheusMetrics(registry)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register metrics")
		return 1
	}

	// Access engine
	svc := access.NewService(access.ServiceConfig{
		Store:       storage.Store,
		Remote:      remote.NewClient(httpClient, logger),
		Stats:       storage.Store,
		Metrics:     promMetrics,
		HostVersion: cfg.HostVersion,
		Logger:      logger,
	})

	// Bootstrap an empty installation
	if cfg.BootstrapFile != "" {
		bootstrap, err := config.LoadBootstrap(cfg.BootstrapFile)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load bootstrap file")
			return 1
		}
		if _, err := app.Seed(ctx, svc, storage.Store, bootstrap, logger); err != nil {
			logger.Error().Err(err).Msg("Failed to apply bootstrap file")
			return 1
		}
	}

	// Sessions and login
	sessions, err := auth.NewSessionStore(auth.DefaultSessionConfig([]byte(cfg.SessionSecret), cfg.IsProduction()), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize session store")
		return 1
	}
	authenticator := auth.NewAuthenticator(storage.Store, svc, logger)

	// Heartbeat scheduler
	var locker scheduler.Locker = scheduler.NopLocker{}
	if redisClient != nil {
		locker = scheduler.NewRedisLocker(redisClient)
	}
	heartbeats := scheduler.New(svc, scheduler.Config{
		Tick:        cfg.SchedulerTick,
		Concurrency: cfg.SchedulerConcurrency,
		Locker:      locker,
		Observer:    promMetrics,
	}, logger)

	// Build API router
	healthChecks := map[string]handlers.Pinger{}
	if storage.Pinger != nil {
		healthChecks["database"] = storage.Pinger
	}
	if redisClient != nil {
		healthChecks["redis"] = redisPinger{redisClient}
	}

	routerCfg := api.Config{
		InboundRateLimit:       cfg.InboundRateLimit,
		InboundRateLimitPeriod: cfg.InboundRateLimitPeriod,
		Version:                Version,
		Commit:                 Commit,
		BuildDate:              BuildDate,
		HostVersion:            cfg.HostVersion,
	}
	router, err := api.NewRouter(routerCfg, api.Dependencies{
		Access:         svc,
		Authenticator:  authenticator,
		Sessions:       sessions,
		Redis:          redisClient,
		HealthChecks:   healthChecks,
		Gatherer:       registry,
		StateRefresher: metrics.NewStateCollector(svc, promMetrics, logger),
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start heartbeat scheduler
	if err := heartbeats.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start heartbeat scheduler")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("HTTP server error")
		exitCode = 1
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		exitCode = 1
	}

	select {
	case <-heartbeats.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Heartbeat pass still running at shutdown deadline")
	}

	logger.Info().Msg("Server stopped")
	return exitCode
}

type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
