package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/screener/pkg/config"
)

// ErrNoDatabaseURL is returned when a component needs Postgres but DATABASE_URL is empty
var ErrNoDatabaseURL = errors.New("DATABASE_URL is required for this command")

// DB wraps the pgxpool.Pool
// ⭐ SSOT: DB 연결은 이 패키지에서만 생성
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool
// ⭐ SSOT: 유일하게 pgxpool.New()를 호출하는 함수
func New(cfg *config.Config) (*DB, error) {
	if cfg.Database.URL == "" {
		return nil, ErrNoDatabaseURL
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database is accessible
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// schema is applied idempotently by EnsureSchema
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS data`,
	`CREATE SCHEMA IF NOT EXISTS selection`,
	`CREATE TABLE IF NOT EXISTS data.stocks (
		code        TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		market      TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'active',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS data.daily_prices (
		stock_code   TEXT NOT NULL,
		trade_date   DATE NOT NULL,
		open_price   DOUBLE PRECISION NOT NULL,
		high_price   DOUBLE PRECISION NOT NULL,
		low_price    DOUBLE PRECISION NOT NULL,
		close_price  DOUBLE PRECISION NOT NULL,
		volume       DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (stock_code, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS selection.scan_runs (
		run_id          UUID PRIMARY KEY,
		started_at      TIMESTAMPTZ NOT NULL,
		elapsed_ms      BIGINT NOT NULL,
		rules           TEXT[] NOT NULL,
		min_score       DOUBLE PRECISION NOT NULL,
		max_results     INT NOT NULL,
		total_symbols   INT NOT NULL,
		processed       INT NOT NULL,
		qualified       INT NOT NULL,
		skipped         INT NOT NULL,
		returned        INT NOT NULL,
		error_verdicts  INT NOT NULL,
		skip_reasons    JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS selection.scan_results (
		run_id          UUID NOT NULL REFERENCES selection.scan_runs(run_id) ON DELETE CASCADE,
		rank            INT NOT NULL,
		stock_code      TEXT NOT NULL,
		composite_score DOUBLE PRECISION NOT NULL,
		details         JSONB NOT NULL,
		PRIMARY KEY (run_id, stock_code)
	)`,
}

// EnsureSchema creates the tables used by the screener if they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// HealthStatus represents the health status of the database
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	Timestamp    time.Time     `json:"timestamp"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	TotalConns   int32         `json:"total_conns"`
	IdleConns    int32         `json:"idle_conns"`
}

// HealthCheck pings the pool and reports connection counts
func (db *DB) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Timestamp: time.Now()}

	start := time.Now()
	if err := db.Pool.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(start)

	stats := db.Pool.Stat()
	status.TotalConns = stats.TotalConns()
	status.IdleConns = stats.IdleConns()
	status.Healthy = true
	return status, nil
}
