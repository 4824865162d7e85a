package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/radiusdt/adreport/internal/config"
	"go.uber.org/zap"
)

// ClickHouseDB wraps a native ClickHouse connection.
type ClickHouseDB struct {
	Conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseDB opens and pings a ClickHouse connection.
func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouseDB, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("no ClickHouse addresses configured")
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addrs,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxConns,
		MaxIdleConns:    cfg.MaxConns / 2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.Info("connected to ClickHouse",
		zap.Strings("addrs", cfg.Addrs),
		zap.String("database", cfg.Database),
	)

	return &ClickHouseDB{
		Conn:   conn,
		logger: logger,
	}, nil
}

const dailyKPISchema = `
CREATE TABLE IF NOT EXISTS daily_kpis (
    client_id         String,
    platform          LowCardinality(String),
    date              Date,
    campaign_id       String,
    campaign_name     String,
    spend             Float64,
    impressions       UInt64,
    clicks            UInt64,
    step1             Float64,
    step2             Float64,
    step3             Float64,
    reservations      Float64,
    reservation_value Float64
) ENGINE = ReplacingMergeTree
ORDER BY (client_id, platform, date, campaign_id)
`

// EnsureSchema creates the daily KPI table when missing.
func (db *ClickHouseDB) EnsureSchema(ctx context.Context) error {
	if err := db.Conn.Exec(ctx, dailyKPISchema); err != nil {
		return fmt.Errorf("failed to apply ClickHouse schema: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection.
func (db *ClickHouseDB) Close() error {
	if db.Conn != nil {
		db.logger.Info("ClickHouse connection closed")
		return db.Conn.Close()
	}
	return nil
}

// Health checks if ClickHouse is reachable.
func (db *ClickHouseDB) Health(ctx context.Context) error {
	return db.Conn.Ping(ctx)
}
