package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wangshuile/jb-quant/pkg/config"
)

// DB wraps the pgxpool.Pool
// ⭐ SSOT: DB 연결은 이 패키지에서만 생성
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool
// ⭐ SSOT: 유일하게 pgxpool.NewWithConfig()를 호출하는 함수
func New(cfg *config.Config) (*DB, error) {
	if !cfg.Database.Enabled() {
		return nil, fmt.Errorf("DATABASE_URL is not set")
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

// Schema DDL. market.daily_bars is read by the paper/backtest market,
// report.* is written by internal/audit.
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS market`,
	`CREATE SCHEMA IF NOT EXISTS report`,
	`CREATE TABLE IF NOT EXISTS market.instruments (
		symbol      TEXT PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		sector      TEXT NOT NULL DEFAULT '',
		market_cap  DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS market.index_constituents (
		index_symbol TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		weight       DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (index_symbol, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS market.daily_bars (
		symbol     TEXT NOT NULL,
		trade_date DATE NOT NULL,
		open       DOUBLE PRECISION NOT NULL,
		high       DOUBLE PRECISION NOT NULL,
		low        DOUBLE PRECISION NOT NULL,
		close      DOUBLE PRECISION NOT NULL,
		volume     DOUBLE PRECISION NOT NULL,
		amount     DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (symbol, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS report.daily_snapshots (
		strategy_id   TEXT NOT NULL,
		snapshot_date DATE NOT NULL,
		total_assets  DOUBLE PRECISION NOT NULL,
		cash          DOUBLE PRECISION NOT NULL,
		market_value  DOUBLE PRECISION NOT NULL,
		positions     INT NOT NULL,
		trade_count   INT NOT NULL,
		win_count     INT NOT NULL,
		total_return  DOUBLE PRECISION NOT NULL,
		selected      JSONB NOT NULL DEFAULT '[]',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (strategy_id, snapshot_date)
	)`,
	`CREATE TABLE IF NOT EXISTS report.trades (
		id          TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price  DOUBLE PRECISION NOT NULL,
		volume      BIGINT NOT NULL,
		returns     DOUBLE PRECISION NOT NULL,
		reason      TEXT NOT NULL,
		entry_date  DATE NOT NULL,
		exit_time   TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the tables used by the engine if missing
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
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
func (db *DB) HealthCheck(ctx context.Context) *HealthStatus {
	status := &HealthStatus{Timestamp: time.Now()}

	start := time.Now()
	if err := db.Pool.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	status.ResponseTime = time.Since(start)

	stats := db.Pool.Stat()
	status.TotalConns = stats.TotalConns()
	status.IdleConns = stats.IdleConns()
	status.Healthy = true
	return status
}
