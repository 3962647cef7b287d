// Package app wires configuration into a ready-to-use extraction pipeline.
// Both the HTTP server and the CLI build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sashabaranov/go-openai"

	"github.com/productbridge/productbridge/internal/acquire"
	"github.com/productbridge/productbridge/internal/config"
	"github.com/productbridge/productbridge/internal/database"
	"github.com/productbridge/productbridge/internal/extraction"
	"github.com/productbridge/productbridge/internal/inference"
	"github.com/productbridge/productbridge/internal/metrics"
	"github.com/productbridge/productbridge/internal/pipeline"
	"github.com/productbridge/productbridge/internal/retry"
	"github.com/productbridge/productbridge/internal/shopify"
)

// Options selects optional parts of the wiring.
type Options struct {
	// Persist enables the Shopify store; CLI runs leave it off.
	Persist bool
	// Metrics receives pipeline metrics when set.
	Metrics *metrics.PipelineCollector
	// Registerer receives database pool metrics when set.
	Registerer prometheus.Registerer
}

// App holds the long-lived collaborators of a running process.
type App struct {
	Pipeline *pipeline.Service
	// DB and InferenceLogs are nil unless a database is configured.
	DB            *sql.DB
	InferenceLogs *database.InferenceLogRepository

	inference *inference.Logger
	logger    *slog.Logger
}

// New builds the pipeline from cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	a := &App{logger: logger}

	var store inference.Store
	db, err := database.Open(ctx, cfg.Database, database.DefaultPoolConfig(), logger)
	switch {
	case errors.Is(err, database.ErrNotConfigured):
		logger.Info("no database configured, inference calls will not be persisted")
	case err != nil:
		return nil, err
	default:
		if err := database.RegisterPoolMetrics(opts.Registerer, db); err != nil {
			db.Close()
			return nil, err
		}
		a.DB = db
		a.InferenceLogs = database.NewInferenceLogRepository(db)
		store = a.InferenceLogs
		logger.Info("inference logging enabled")
	}
	a.inference = inference.NewLogger(store, logger)

	onRetry := func(p retry.Policy) func(int, error, time.Duration) {
		return func(int, error, time.Duration) { opts.Metrics.IncRetry(p.String()) }
	}

	openaiConfig := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		openaiConfig.BaseURL = cfg.OpenAI.BaseURL
	}
	extractor := extraction.NewExtractor(openai.NewClientWithConfig(openaiConfig), extraction.Config{
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
		Retry:       retry.Options{OnRetry: onRetry(retry.PolicyAI)},
	}, a.inference, logger)

	fetcher := acquire.NewPageFetcher(acquire.FetcherOptions{
		UserAgent:    cfg.Scrape.UserAgent,
		MaxBodyBytes: cfg.Scrape.MaxBodyBytes,
		Retry:        retry.Options{OnRetry: onRetry(retry.PolicyFetch)},
		Logger:       logger,
	})
	scraper := acquire.NewScraper(fetcher, acquire.ScraperOptions{
		CacheSize: cfg.Scrape.CacheSize,
		CacheTTL:  cfg.Scrape.CacheTTL,
		Logger:    logger,
	})

	deps := pipeline.Deps{
		Extractor: extractor,
		PDF:       acquire.NewPDFAcquirer(logger),
		Scraper:   scraper,
		Metrics:   opts.Metrics,
		Logger:    logger,
	}

	if opts.Persist {
		client, err := shopify.NewClient(shopify.Options{
			ShopDomain:        cfg.Shopify.ShopDomain,
			AccessToken:       cfg.Shopify.AccessToken,
			APIVersion:        cfg.Shopify.APIVersion,
			RequestsPerSecond: cfg.Shopify.RequestsPerSecond,
			Burst:             cfg.Shopify.Burst,
			Retry:             retry.Options{OnRetry: onRetry(retry.PolicyCommerce)},
			Logger:            logger,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Store = client
	}

	a.Pipeline = pipeline.NewService(deps)
	return a, nil
}

// HealthCheck reports whether the database, when configured, is reachable.
func (a *App) HealthCheck(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return database.HealthCheck(ctx, a.DB)
}

// Close flushes pending inference records and releases the database.
func (a *App) Close() {
	a.inference.Wait()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
}
