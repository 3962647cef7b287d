package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/productbridge/productbridge/internal/api"
	"github.com/productbridge/productbridge/internal/app"
	"github.com/productbridge/productbridge/internal/auth"
	"github.com/productbridge/productbridge/internal/config"
	"github.com/productbridge/productbridge/internal/logging"
	"github.com/productbridge/productbridge/internal/metrics"
	"github.com/productbridge/productbridge/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting productbridge", "shop", cfg.Shopify.ShopDomain, "model", cfg.OpenAI.Model)

	collector, err := metrics.NewHTTPCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	pipelineMetrics, err := metrics.NewPipelineCollector(collector.Registry())
	if err != nil {
		logger.Error("failed to init pipeline metrics", "error", err)
		os.Exit(1)
	}

	application, err := app.New(context.Background(), cfg, logger, app.Options{
		Persist:    true,
		Metrics:    pipelineMetrics,
		Registerer: collector.Registry(),
	})
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	authConfig := auth.Config{
		APIKey:     cfg.Shopify.APIKey,
		APISecret:  cfg.Shopify.APISecret,
		ShopDomain: cfg.Shopify.ShopDomain,
	}
	if !authConfig.Enabled() {
		logger.Warn("SHOPIFY_API_SECRET not set, session tokens will not be verified")
	}

	deps := api.RouterDeps{
		Pipeline:    application.Pipeline,
		Auth:        authConfig,
		HealthCheck: application.HealthCheck,
		Metrics:     collector.Handler(),
		Logger:      logger,
	}
	if application.InferenceLogs != nil {
		deps.InferenceLogs = application.InferenceLogs
	}
	handler := api.NewRouter(deps, collector.InstrumentHandler)

	srv := server.New(cfg.Server, logger, handler, api.Routes(deps)...)
	srv.OnShutdown(func(context.Context) { application.Close() })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		application.Close()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
