// Enterprise tool router server: turns natural-language questions into
// validated read-only SQL behind an HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/holdersav20001/enterprise-tool-router/pkg/api"
	"github.com/holdersav20001/enterprise-tool-router/pkg/audit"
	"github.com/holdersav20001/enterprise-tool-router/pkg/cache"
	"github.com/holdersav20001/enterprise-tool-router/pkg/cleanup"
	"github.com/holdersav20001/enterprise-tool-router/pkg/config"
	"github.com/holdersav20001/enterprise-tool-router/pkg/database"
	"github.com/holdersav20001/enterprise-tool-router/pkg/executor"
	"github.com/holdersav20001/enterprise-tool-router/pkg/history"
	"github.com/holdersav20001/enterprise-tool-router/pkg/llm"
	"github.com/holdersav20001/enterprise-tool-router/pkg/planner"
	"github.com/holdersav20001/enterprise-tool-router/pkg/ratelimit"
	"github.com/holdersav20001/enterprise-tool-router/pkg/resilience"
	"github.com/holdersav20001/enterprise-tool-router/pkg/safety"
	"github.com/holdersav20001/enterprise-tool-router/pkg/tools"
	"github.com/holdersav20001/enterprise-tool-router/pkg/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to optional YAML config file")
	envPath := flag.String("env", ".env", "Path to optional .env file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envPath); err != nil {
		logger.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	logger.Info("Starting enterprise tool router", "version", version.Full())

	cfg, err := config.Initialize(*configPath)
	if err != nil {
		logger.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logger.Error("Error closing database client", "error", err)
		}
	}()
	logger.Info("Connected to PostgreSQL database")

	cacheMgr := cache.New(ctx, cfg.Redis, cfg.Cache, logger)
	defer func() { _ = cacheMgr.Close() }()

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		logger.Error("Failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	bounded := llm.WithTimeout(provider, cfg.LLM.Timeout)
	breaker := resilience.New("llm", resilience.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           cfg.Breaker.Window,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	})
	logger.Info("LLM provider initialized",
		"provider", cfg.LLM.Provider, "model", provider.ModelName())

	hist := history.New(dbClient.DB(), cfg.History, logger)
	sink := audit.NewSink(dbClient.DB())
	limiter := ratelimit.New(cfg.RateLimit)
	validator := safety.New(safety.Config{
		AllowedTables:   cfg.Validator.AllowedTables,
		BlockedKeywords: cfg.Validator.BlockedKeywords,
		DefaultLimit:    cfg.Validator.DefaultLimit,
	})

	sqlTool := tools.NewSQLTool(tools.SQLToolDeps{
		Limiter:             limiter,
		Validator:           validator,
		Planner:             planner.New(bounded, breaker, cacheMgr, hist, logger),
		Executor:            executor.New(dbClient.DB()),
		Cache:               cacheMgr,
		History:             hist,
		Audit:               sink,
		ConfidenceThreshold: cfg.LLM.ConfidenceThreshold,
		Logger:              logger,
	})

	retention := cleanup.NewService(cfg.History, hist, logger)
	retention.Start(ctx)
	defer retention.Stop()

	server := api.NewServer(api.Deps{
		Router:  tools.NewRouter(sqlTool),
		DB:      dbClient,
		Cache:   cacheMgr,
		Limiter: limiter,
		Breaker: breaker,
		Audit:   sink,
		History: hist,
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}
