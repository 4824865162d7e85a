package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/config"
	"github.com/radiusdt/adreport/internal/metrics"
)

// PostgresDB holds the pool for account links and historical summaries.
type PostgresDB struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresDB creates a new PostgreSQL connection pool.
func NewPostgresDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "adreport"
	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DBName),
		zap.Int("max_conns", cfg.MaxConns),
	)

	return &PostgresDB{
		Pool:   pool,
		logger: logger,
	}, nil
}

// schema creates the tables the report resolver reads. Historical summaries
// are written by the backfill job; the resolver never updates them.
const schema = `
CREATE TABLE IF NOT EXISTS client_accounts (
    client_id   TEXT NOT NULL,
    platform    TEXT NOT NULL,
    account_id  TEXT NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (client_id, platform)
);

CREATE TABLE IF NOT EXISTS historical_summaries (
    client_id     TEXT NOT NULL,
    platform      TEXT NOT NULL,
    period_type   TEXT NOT NULL,
    period_start  DATE NOT NULL,
    period_end    DATE NOT NULL,
    campaigns     JSONB NOT NULL DEFAULT '[]'::jsonb,
    backfilled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (client_id, platform, period_type, period_start)
);
`

// EnsureSchema creates missing tables.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() {
	if db.Pool == nil {
		return
	}
	db.logger.Info("closing PostgreSQL pool")
	db.Pool.Close()
}

// Health pings the pool.
func (db *PostgresDB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ReportPool publishes connection pool gauges.
func (db *PostgresDB) ReportPool(m *metrics.Metrics) {
	st := db.Pool.Stat()
	m.SetPoolConns("postgres", "total", float64(st.TotalConns()))
	m.SetPoolConns("postgres", "idle", float64(st.IdleConns()))
	m.SetPoolConns("postgres", "acquired", float64(st.AcquiredConns()))
}
