package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/config"
	"github.com/radiusdt/adreport/internal/metrics"
)

func TestNewRedisDB(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	db, err := NewRedisDB(ctx, config.RedisConfig{Addrs: []string{mr.Addr()}, PoolSize: 4}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Health(ctx))
	require.NoError(t, db.Client.Set(ctx, "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	db.ReportPool(m)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.PoolConns.WithLabelValues("redis", "total")), 1.0)
}

func TestNewRedisDB_Unreachable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisDB(ctx, config.RedisConfig{Addrs: []string{addr}}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestNewClickHouseDB_NoAddrs(t *testing.T) {
	_, err := NewClickHouseDB(context.Background(), config.ClickHouseConfig{}, zap.NewNop())
	assert.Error(t, err)
}
