// Package main is the entry point for the litellm gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/internal/api"
	"github.com/BerriAI/litellm-go/internal/auth"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/internal/healthcheck"
	"github.com/BerriAI/litellm-go/internal/mcp"
	"github.com/BerriAI/litellm-go/internal/observability"
	"github.com/BerriAI/litellm-go/internal/version"
	"github.com/BerriAI/litellm-go/pkg/router"
	"github.com/BerriAI/litellm-go/routers"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// Bootstrap logger until the configured one is available.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfgManager, err := config.NewManager(*configPath, logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg := cfgManager.Get()

	logger = buildLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting litellm gateway", "version", version.Version)

	for _, warning := range cfg.Warnings() {
		logger.Warn("configuration warning", "code", warning.Code, "message", warning.Message)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	// Credentials may reference secret backends (env://, vault://);
	// resolve them before anything consumes the config.
	secretMgr, err := buildSecretManager(cfg)
	if err != nil {
		logger.Error("failed to initialize secret manager", "error", err)
		os.Exit(1)
	}
	cfg, err = resolveSecrets(ctx, cfg, secretMgr)
	if err != nil {
		logger.Error("failed to resolve secrets", "error", err)
		os.Exit(1)
	}

	// Auth stores back virtual keys, teams, budgets and spend logs.
	authStore, auditStore, err := initAuthStores(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize auth stores", "error", err)
		os.Exit(1)
	}

	auditLogger := auth.NewAuditLogger(auditStore, cfg.Governance.AuditEnabled)
	governanceEngine := buildGovernanceEngine(cfg, authStore, auditLogger, logger)

	// In distributed mode, router state (latency stats, round-robin
	// cursors) is shared across instances through Redis.
	var statsStore router.StatsStore
	var rrStore router.RoundRobinStore
	var poolStatsRedis redisPoolStatsProvider
	if cfg.Routing.Distributed {
		redisClient, isCluster, err := newRedisUniversalClient(cfg.Cache.Redis)
		if err != nil {
			logger.Error("distributed routing requires redis", "error", err)
			os.Exit(1)
		}
		statsStore = routers.NewRedisStatsStore(redisClient)
		rrStore = routers.NewRedisRoundRobinStore(redisClient)
		poolStatsRedis = redisClient
		logger.Info("distributed routing state enabled", "cluster", isCluster)
	}

	obsManager, err := observability.NewObservabilityManager(observability.ObservabilityConfig{
		OpenTelemetry: observability.TracingConfig{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		},
	})
	if err != nil {
		logger.Error("failed to initialize observability", "error", err)
		os.Exit(1)
	}

	buildClient := func(c *config.Config) (*litellm.Client, error) {
		rc, err := resolveSecrets(ctx, c, secretMgr)
		if err != nil {
			return nil, err
		}
		opts := buildClientOptions(rc, logger, statsStore, rrStore)
		opts = append(opts, litellm.WithFallbackReporter(obsManager.LogFallback))
		return litellm.New(opts...)
	}

	client, err := buildClient(cfg)
	if err != nil {
		logger.Error("failed to initialize gateway client", "error", err)
		os.Exit(1)
	}

	swapper := api.NewClientSwapper(client)
	reloader := newClientReloader(logger, swapper, buildClient)
	cfgManager.OnChange(reloader.Reload)

	var syncer *auth.UserTeamSyncer
	if cfg.Auth.Enabled && cfg.Auth.OIDC.IssuerURL != "" {
		syncer = auth.NewUserTeamSyncer(authStore, auth.UserTeamSyncConfig{
			Enabled:         true,
			AutoCreateUsers: cfg.Auth.OIDC.UserIDUpsert,
			AutoCreateTeams: cfg.Auth.OIDC.TeamIDUpsert,
			SyncUserRole:    true,
			DefaultRole:     cfg.Auth.OIDC.ClaimMapping.DefaultRole,
		}, logger)
	}

	middlewareStack, err := buildMiddlewareStack(cfg, authStore, logger, syncer)
	if err != nil {
		logger.Error("failed to build middleware stack", "error", err)
		os.Exit(1)
	}

	var mcpManager mcp.Manager
	if cfg.MCP.Enabled {
		manager, err := mcp.NewManager(ctx, mcp.FromConfig(cfg.MCP), logger)
		if err != nil {
			logger.Error("failed to initialize mcp manager", "error", err)
			os.Exit(1)
		}
		defer func() { _ = manager.Close() }()
		mcpManager = manager
	}

	handler := api.NewClientHandlerWithSwapper(swapper, logger, &api.ClientHandlerConfig{
		Store:         authStore,
		Governance:    governanceEngine,
		Observability: obsManager,
		MCPManager:    mcpManager,
		ResponseCache: buildResponseCache(&cfg.Cache, logger),
		ResponseTTL:   cfg.Cache.TTL,
	})

	mgmtHandler := buildManagementHandler(authStore, logger)

	muxes, err := buildMuxes(cfg, handler, mgmtHandler, logger, nil)
	if err != nil {
		logger.Error("failed to build routes", "error", err)
		os.Exit(1)
	}

	var prober *healthcheck.Prober
	if cfg.Healthcheck.Enabled {
		prober = healthcheck.NewProber(healthcheck.Config{
			Enabled:        cfg.Healthcheck.Enabled,
			Interval:       cfg.Healthcheck.Interval,
			Timeout:        cfg.Healthcheck.Timeout,
			CooldownPeriod: cfg.Healthcheck.CooldownPeriod,
		}, swapperClientProvider{swapper: swapper}, logger)
		prober.Start(ctx)
	}
	muxes.Data.HandleFunc("GET /health", healthStatusHandler(prober, swapper))

	if mcpManager != nil {
		mcpHTTP := mcp.NewHTTPHandler(mcpManager)
		muxes.Data.HandleFunc("GET /v1/mcp/tools", mcpHTTP.ListTools)
		muxes.Data.HandleFunc("POST /v1/mcp/tools/call", mcpHTTP.CallTool)
	}

	runner := startJobRunner(cfg, authStore, logger, nil)
	if runner != nil {
		defer runner.Stop()
	}

	if statsProvider, ok := authStore.(dbStatsProvider); ok {
		if stop := startDBPoolMetrics(ctx, statsProvider, logger, 30*time.Second); stop != nil {
			defer stop()
		}
	}

	if stop := startRuntimeMetrics(ctx, poolStatsRedis, 30*time.Second); stop != nil {
		defer stop()
	}

	dataHandler := managementAuthzMiddleware(cfg)(muxes.Data)
	if mcpManager != nil {
		// Request-scoped manager lookup in the handlers.
		dataHandler = mcp.Middleware(mcpManager)(dataHandler)
	}

	dataServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middlewareStack(dataHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var adminServer *http.Server
	if muxes.Admin != nil {
		adminServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.AdminPort),
			Handler:      middlewareStack(managementAuthzMiddleware(cfg)(muxes.Admin)),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}
	}

	go func() {
		logger.Info("data server listening", "port", cfg.Server.Port)
		if err := dataServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("data server error", "error", err)
			os.Exit(1)
		}
	}()

	if adminServer != nil {
		go func() {
			logger.Info("admin server listening", "port", cfg.Server.AdminPort)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	if err := dataServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("data server shutdown error", "error", err)
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown error", "error", err)
		}
	}

	if err := obsManager.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown error", "error", err)
	}

	_ = cfgManager.Close()
	_ = secretMgr.Close()
	swapper.Close()
	logger.Info("server stopped")
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
