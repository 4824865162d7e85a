package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/config"
	"github.com/radiusdt/adreport/internal/database"
	"github.com/radiusdt/adreport/internal/httpserver"
	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting adreport",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.Duration("cache_ttl", cfg.Resolver.CacheTTL),
		zap.String("timezone", cfg.Resolver.Timezone),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(cfg.Metrics.Namespace, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, redis, ch := connectStores(ctx, cfg, logger)
	cancel()
	if db != nil {
		defer db.Close()
	}
	if redis != nil {
		defer redis.Close()
	}
	if ch != nil {
		defer ch.Close()
	}

	srv := httpserver.NewServer(&httpserver.Dependencies{
		DB:         db,
		Redis:      redis,
		ClickHouse: ch,
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
	})

	var handler http.Handler = srv
	var limiter *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m, cfg.Metrics.Path)
		handler = limiter.Handler(handler)
	}
	handler = middleware.Chain(handler,
		middleware.NewLoggingMiddleware(logger, cfg.Metrics.Path).Handler,
		middleware.NewRecoveryMiddleware(logger).Handler,
	)

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Resolver.FetchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan struct{})
	go housekeeping(stop, limiter, db, redis, m, logger)

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(stop)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Let background cache refreshes land before the stores close.
	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("background refreshes still running at shutdown")
	}

	logger.Info("server stopped")
}

// housekeeping evicts idle rate limiters and publishes pool gauges until stop
// is closed.
func housekeeping(stop <-chan struct{}, limiter *middleware.RateLimitMiddleware, db *database.PostgresDB, redis *database.RedisDB, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if db != nil {
				db.ReportPool(m)
			}
			if redis != nil {
				redis.ReportPool(m)
			}
			if limiter != nil {
				if n := limiter.Cleanup(10 * time.Minute); n > 0 {
					logger.Debug("evicted idle rate limiters", zap.Int("count", n))
				}
			}
		case <-stop:
			return
		}
	}
}

// connectStores opens every enabled store. A store that cannot be reached is
// left nil and the server falls back to in-memory storage for it.
func connectStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.PostgresDB, *database.RedisDB, *database.ClickHouseDB) {
	var (
		db    *database.PostgresDB
		redis *database.RedisDB
		ch    *database.ClickHouseDB
		err   error
	)

	if cfg.Database.Enabled {
		db, err = database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("PostgreSQL not available, using in-memory historical store", zap.Error(err))
			db = nil
		} else if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure postgres schema", zap.Error(err))
		}
	}

	if cfg.Redis.Enabled {
		redis, err = database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, using in-memory cache", zap.Error(err))
			redis = nil
		}
	}

	if cfg.ClickHouse.Enabled {
		ch, err = database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("ClickHouse not available, daily KPI fallback disabled", zap.Error(err))
			ch = nil
		} else if err := ch.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure clickhouse schema", zap.Error(err))
		}
	}

	return db, redis, ch
}
