package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/productbridge/productbridge/internal/config"
)

// ErrNotConfigured is returned by Open when neither DATABASE_URL nor a Cloud
// SQL instance is set. Inference calls are then only logged.
var ErrNotConfigured = errors.New("database not configured")

// PoolConfig sizes the connection pool. The inference log writes one row per
// model call, so the pool stays small.
type PoolConfig struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// DefaultPoolConfig returns the pool used by the server.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpen:         10,
		MaxIdle:         5,
		ConnMaxLifetime: 5 * time.Minute,
		PingTimeout:     10 * time.Second,
	}
}

// Open connects to the inference log database described by cfg and applies
// pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, pool PoolConfig, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn, err := BuildURL(cfg)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, ErrNotConfigured
	}

	logger.Info("connecting to inference log database", "config", Describe(cfg))

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := prepare(ctx, db, pool, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func prepare(ctx context.Context, db *sql.DB, pool PoolConfig, logger *slog.Logger) error {
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pool.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// HealthCheck pings db with a short deadline.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// RegisterPoolMetrics exports db's pool statistics (open, in use, idle, waits)
// on reg under the productbridge_inference_db prefix.
func RegisterPoolMetrics(reg prometheus.Registerer, db *sql.DB) error {
	if reg == nil || db == nil {
		return nil
	}
	if err := reg.Register(collectors.NewDBStatsCollector(db, "productbridge_inference_db")); err != nil {
		return fmt.Errorf("register database pool metrics: %w", err)
	}
	return nil
}
