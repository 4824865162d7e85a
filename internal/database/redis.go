package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/config"
	"github.com/radiusdt/adreport/internal/metrics"
)

// RedisDB holds the client backing the current-period cache. The client is a
// single node, a cluster or a sentinel-managed master depending on config.
type RedisDB struct {
	Client redis.UniversalClient
	logger *zap.Logger
}

// NewRedisDB connects to Redis and verifies the connection with a ping.
func NewRedisDB(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisDB, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      cfg.Addrs,
		MasterName: cfg.MasterName,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,

		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", strings.Join(cfg.Addrs, ","), err)
	}

	logger.Info("connected to Redis",
		zap.Strings("addrs", cfg.Addrs),
		zap.String("master", cfg.MasterName),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize),
	)

	return &RedisDB{Client: client, logger: logger}, nil
}

func (r *RedisDB) Close() error {
	if r.Client == nil {
		return nil
	}
	r.logger.Info("closing Redis client")
	return r.Client.Close()
}

// ReportPool publishes connection pool gauges.
func (r *RedisDB) ReportPool(m *metrics.Metrics) {
	st := r.Client.PoolStats()
	m.SetPoolConns("redis", "total", float64(st.TotalConns))
	m.SetPoolConns("redis", "idle", float64(st.IdleConns))
	m.SetPoolConns("redis", "stale", float64(st.StaleConns))
}

// Health pings Redis.
func (r *RedisDB) Health(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
