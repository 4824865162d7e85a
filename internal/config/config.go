package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the adreport service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Resolver   ResolverConfig
	Platforms  PlatformsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled bool
	// Addrs holds one address for a single node, several for a cluster, or
	// the sentinels when MasterName is set.
	Addrs      []string
	MasterName string
	Password   string
	DB         int
	PoolSize   int
}

// ClickHouseConfig configures the daily KPI store.
type ClickHouseConfig struct {
	Enabled     bool
	Addrs       []string
	Database    string
	User        string
	Password    string
	DialTimeout time.Duration
	MaxConns    int
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// ResolverConfig holds the freshness and upstream budget settings.
type ResolverConfig struct {
	// CacheTTL is how long a current-period snapshot counts as fresh.
	CacheTTL time.Duration
	// CacheRetention is how long a cache row is kept at all.
	CacheRetention time.Duration
	FetchTimeout   time.Duration
	StoreTimeout   time.Duration
	RetryMax       int
	UpstreamRPS    float64
	UpstreamBurst  int
	BreakerTimeout time.Duration
	// Timezone decides what "today" is.
	Timezone string
}

// Location loads the configured time zone.
func (r ResolverConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// PlatformEndpoint is one insights gateway.
type PlatformEndpoint struct {
	BaseURL     string
	AccessToken string
}

type PlatformsConfig struct {
	Meta   PlatformEndpoint
	Google PlatformEndpoint
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(getEnv("ADREPORT_ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADREPORT_HTTP_ADDR", ":8080"),
			Env:             getEnv("ADREPORT_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ADREPORT_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("ADREPORT_DB_ENABLED", true),
			Host:     getEnv("ADREPORT_DB_HOST", "localhost"),
			Port:     getIntEnv("ADREPORT_DB_PORT", 5432),
			User:     getEnv("ADREPORT_DB_USER", "adreport"),
			Password: getEnv("ADREPORT_DB_PASSWORD", "adreport_secret"),
			DBName:   getEnv("ADREPORT_DB_NAME", "adreport"),
			SSLMode:  getEnv("ADREPORT_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ADREPORT_DB_MAX_CONNS", 20),
			MinConns: getIntEnv("ADREPORT_DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Enabled:    getBoolEnv("ADREPORT_REDIS_ENABLED", true),
			Addrs:      getSliceEnv("ADREPORT_REDIS_ADDRS", []string{"localhost:6379"}),
			MasterName: getEnv("ADREPORT_REDIS_MASTER_NAME", ""),
			Password:   getEnv("ADREPORT_REDIS_PASSWORD", ""),
			DB:         getIntEnv("ADREPORT_REDIS_DB", 0),
			PoolSize:   getIntEnv("ADREPORT_REDIS_POOL_SIZE", 50),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:     getBoolEnv("ADREPORT_CLICKHOUSE_ENABLED", false),
			Addrs:       getSliceEnv("ADREPORT_CLICKHOUSE_ADDRS", []string{"localhost:9000"}),
			Database:    getEnv("ADREPORT_CLICKHOUSE_DB", "adreport"),
			User:        getEnv("ADREPORT_CLICKHOUSE_USER", "default"),
			Password:    getEnv("ADREPORT_CLICKHOUSE_PASSWORD", ""),
			DialTimeout: getDurationEnv("ADREPORT_CLICKHOUSE_DIAL_TIMEOUT", 5*time.Second),
			MaxConns:    getIntEnv("ADREPORT_CLICKHOUSE_MAX_CONNS", 10),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("ADREPORT_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("ADREPORT_RATE_LIMIT_RPS", 50),
			Burst:   getIntEnv("ADREPORT_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("ADREPORT_LOG_LEVEL", "info"),
			Format: getEnv("ADREPORT_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("ADREPORT_METRICS_ENABLED", true),
			Path:      getEnv("ADREPORT_METRICS_PATH", "/metrics"),
			Namespace: getEnv("ADREPORT_METRICS_NAMESPACE", "adreport"),
		},
		Resolver: ResolverConfig{
			CacheTTL:       getDurationEnv("ADREPORT_CACHE_TTL", 3*time.Hour),
			CacheRetention: getDurationEnv("ADREPORT_CACHE_RETENTION", 45*24*time.Hour),
			FetchTimeout:   getDurationEnv("ADREPORT_FETCH_TIMEOUT", 45*time.Second),
			StoreTimeout:   getDurationEnv("ADREPORT_STORE_TIMEOUT", 5*time.Second),
			RetryMax:       getIntEnv("ADREPORT_RETRY_MAX", 3),
			UpstreamRPS:    getFloatEnv("ADREPORT_UPSTREAM_RPS", 5),
			UpstreamBurst:  getIntEnv("ADREPORT_UPSTREAM_BURST", 10),
			BreakerTimeout: getDurationEnv("ADREPORT_BREAKER_TIMEOUT", 30*time.Second),
			Timezone:       getEnv("ADREPORT_TIMEZONE", "UTC"),
		},
		Platforms: PlatformsConfig{
			Meta: PlatformEndpoint{
				BaseURL:     getEnv("ADREPORT_META_BASE_URL", "http://localhost:8090/meta"),
				AccessToken: getEnv("ADREPORT_META_ACCESS_TOKEN", ""),
			},
			Google: PlatformEndpoint{
				BaseURL:     getEnv("ADREPORT_GOOGLE_BASE_URL", "http://localhost:8090/google"),
				AccessToken: getEnv("ADREPORT_GOOGLE_ACCESS_TOKEN", ""),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Resolver.CacheTTL <= 0 {
		return fmt.Errorf("ADREPORT_CACHE_TTL must be positive")
	}
	if c.Resolver.CacheRetention < c.Resolver.CacheTTL {
		return fmt.Errorf("ADREPORT_CACHE_RETENTION must not be shorter than ADREPORT_CACHE_TTL")
	}
	if c.Resolver.FetchTimeout <= 0 {
		return fmt.Errorf("ADREPORT_FETCH_TIMEOUT must be positive")
	}
	if c.Resolver.RetryMax < 1 {
		return fmt.Errorf("ADREPORT_RETRY_MAX must be at least 1")
	}
	if _, err := c.Resolver.Location(); err != nil {
		return fmt.Errorf("invalid ADREPORT_TIMEZONE %q: %w", c.Resolver.Timezone, err)
	}
	if c.Redis.Enabled && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("ADREPORT_REDIS_ADDRS is required when Redis is enabled")
	}
	if c.ClickHouse.Enabled && len(c.ClickHouse.Addrs) == 0 {
		return fmt.Errorf("ADREPORT_CLICKHOUSE_ADDRS is required when ClickHouse is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
