package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/config"
	"github.com/radiusdt/adreport/internal/database"
	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/middleware"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/period"
	"github.com/radiusdt/adreport/internal/platform"
	"github.com/radiusdt/adreport/internal/reporting"
	"github.com/radiusdt/adreport/internal/storage"
)

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics

	// Adapters default to the HTTP insights gateways from Config.
	Adapters []platform.Adapter
	// Resolver is built from the stores above when nil.
	Resolver *reporting.Resolver
}

// Server wraps HTTP handlers around the report resolver.
type Server struct {
	resolver *reporting.Resolver
	checks   map[string]HealthChecker
	logger   *zap.Logger
	config   *config.Config
	metrics  *metrics.Metrics
	mux      *http.ServeMux
}

// NewServer constructs the server with all routes registered.
func NewServer(deps *Dependencies) *Server {
	s := &Server{
		resolver: deps.Resolver,
		checks:   make(map[string]HealthChecker),
		logger:   deps.Logger,
		config:   deps.Config,
		metrics:  deps.Metrics,
	}
	if s.resolver == nil {
		s.resolver = buildResolver(deps)
	}

	if deps.DB != nil {
		s.checks["postgres"] = deps.DB
	}
	if deps.Redis != nil {
		s.checks["redis"] = deps.Redis
	}
	if deps.ClickHouse != nil {
		s.checks["clickhouse"] = deps.ClickHouse
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, s.metrics.Handler())
	}

	// Reports
	mux.HandleFunc("/reports/metrics", s.handleMetricsQuery)
	mux.HandleFunc("/reports/resolve", s.handleResolve)

	// Cache administration
	mux.HandleFunc("/cache/invalidate", s.handleInvalidate)

	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Wait blocks until background cache refreshes have finished.
func (s *Server) Wait() {
	s.resolver.Wait()
}

// buildResolver wires stores and adapters, falling back to in-memory stores
// for anything not configured.
func buildResolver(deps *Dependencies) *reporting.Resolver {
	cfg := deps.Config.Resolver

	var cache storage.CacheRepo = storage.NewInMemoryCacheRepo()
	if deps.Redis != nil {
		cache = storage.NewRedisCacheRepo(deps.Redis.Client, cfg.CacheRetention)
	}

	var (
		summaries storage.HistoricalRepo = storage.NewInMemoryHistoricalRepo()
		accounts  storage.AccountRepo    = storage.NewInMemoryAccountRepo()
		daily     storage.DailyKPIRepo
	)
	if deps.DB != nil {
		summaries = storage.NewPostgresHistoricalRepo(deps.DB.Pool)
		accounts = storage.NewPostgresAccountRepo(deps.DB.Pool)
	}
	if deps.ClickHouse != nil {
		daily = storage.NewClickHouseDailyKPIRepo(deps.ClickHouse.Conn)
	}

	adapters := deps.Adapters
	if adapters == nil {
		client := platform.NewHTTPInsightsClient(map[models.Platform]platform.Endpoint{
			models.PlatformMeta: {
				BaseURL:     deps.Config.Platforms.Meta.BaseURL,
				AccessToken: deps.Config.Platforms.Meta.AccessToken,
			},
			models.PlatformGoogle: {
				BaseURL:     deps.Config.Platforms.Google.BaseURL,
				AccessToken: deps.Config.Platforms.Google.AccessToken,
			},
		}, cfg.FetchTimeout, deps.Logger)
		for _, a := range platform.NewAdapters(client) {
			adapters = append(adapters, platform.NewBreakerAdapter(a, cfg.BreakerTimeout, deps.Logger, deps.Metrics))
		}
	}

	orch := reporting.NewOrchestrator(adapters, accounts, cache, reporting.OrchestratorConfig{
		FetchTimeout:  cfg.FetchTimeout,
		CacheTTL:      cfg.CacheTTL,
		StoreTimeout:  cfg.StoreTimeout,
		RetryMax:      cfg.RetryMax,
		RetryInitial:  500 * time.Millisecond,
		UpstreamRPS:   cfg.UpstreamRPS,
		UpstreamBurst: cfg.UpstreamBurst,
	}, deps.Logger, deps.Metrics)

	loc, err := cfg.Location()
	if err != nil {
		deps.Logger.Warn("invalid timezone, using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}

	return reporting.NewResolver(
		cache,
		reporting.NewHistoricalReader(summaries, daily, deps.Logger, deps.Metrics),
		orch,
		reporting.ResolverConfig{CacheTTL: cfg.CacheTTL, StoreTimeout: cfg.StoreTimeout, Location: loc},
		deps.Logger,
		deps.Metrics,
	)
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		if err := c.Health(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	if status != "ok" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "components": components})
		return
	}
	s.jsonResponse(w, map[string]any{"status": status, "components": components})
}

// ---- Reports ----

// handleMetricsQuery serves GET /reports/metrics?client_id=&platform=&start=&end=
// or &preset= instead of start/end. platform=all resolves every platform.
func (s *Server) handleMetricsQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	req := models.FetchRequest{
		ClientID: q.Get("client_id"),
		Platform: models.Platform(strings.ToLower(q.Get("platform"))),
		Reason:   q.Get("reason"),
	}

	if v := q.Get("force_fresh"); v != "" {
		force, err := strconv.ParseBool(v)
		if err != nil {
			s.errorResponse(w, "invalid force_fresh", http.StatusBadRequest)
			return
		}
		req.ForceFresh = force
	}

	var err error
	if preset := q.Get("preset"); preset != "" {
		req.DateRange, err = period.Preset(preset, s.resolver.Today())
	} else {
		req.DateRange, err = models.ParseDateRange(q.Get("start"), q.Get("end"))
	}
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Platform == "all" || req.Platform == "" {
		results, err := s.resolver.ResolveBoth(resolveContext(r), req)
		if err != nil {
			s.resolveError(w, err)
			return
		}
		s.jsonResponse(w, results)
		return
	}

	s.resolve(w, r, req)
}

// handleResolve serves POST /reports/resolve with a JSON FetchRequest.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.FetchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.errorResponse(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.resolve(w, r, req)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, req models.FetchRequest) {
	res, err := s.resolver.Resolve(resolveContext(r), req)
	if err != nil {
		s.resolveError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(res))
	_ = json.NewEncoder(w).Encode(res)
}

// resolveContext carries the HTTP request id into the resolution debug info.
func resolveContext(r *http.Request) context.Context {
	return reporting.WithRequestID(r.Context(), middleware.RequestIDFrom(r.Context()))
}

func (s *Server) resolveError(w http.ResponseWriter, err error) {
	var ve *reporting.ValidationError
	if errors.As(err, &ve) {
		s.errorResponse(w, ve.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Error("failed to resolve report", zap.Error(err))
	s.errorResponse(w, "failed to resolve report", http.StatusInternalServerError)
}

// statusFor maps a resolution outcome to an HTTP status. The body always
// carries the full result.
func statusFor(res *models.ResolutionResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Debug.ErrorCode {
	case reporting.CodeTimeout:
		return http.StatusGatewayTimeout
	case platform.CodeRateLimited:
		return http.StatusTooManyRequests
	case reporting.CodeStoreUnavailable, platform.CodeCircuitOpen:
		return http.StatusServiceUnavailable
	case reporting.CodeAccountNotLinked:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// ---- Cache administration ----

type invalidateRequest struct {
	ClientID string          `json:"client_id"`
	Platform models.Platform `json:"platform"`
	PeriodID string          `json:"period_id"`
	Tier     models.Tier     `json:"tier"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req invalidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" || req.PeriodID == "" || !req.Platform.Valid() ||
		(req.Tier != models.TierMonth && req.Tier != models.TierWeek) {
		s.errorResponse(w, "client_id, platform, period_id and tier are required", http.StatusBadRequest)
		return
	}

	key := models.CacheKey{ClientID: req.ClientID, Platform: req.Platform, PeriodID: req.PeriodID, Tier: req.Tier}
	if err := s.resolver.Invalidate(r.Context(), key); err != nil {
		s.logger.Error("failed to invalidate cache entry", zap.String("key", key.String()), zap.Error(err))
		s.errorResponse(w, "failed to invalidate", http.StatusInternalServerError)
		return
	}
	s.logger.Info("cache entry invalidated", zap.String("key", key.String()))
	w.WriteHeader(http.StatusNoContent)
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
