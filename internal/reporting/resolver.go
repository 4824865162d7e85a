package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/period"
	"github.com/radiusdt/adreport/internal/storage"
)

// ResolverConfig holds the freshness settings of a Resolver.
type ResolverConfig struct {
	CacheTTL     time.Duration
	StoreTimeout time.Duration
	// Location decides the calendar date of "today".
	Location *time.Location
}

// Resolver is the entry point of the reporting layer. For each request it
// picks the tier to read from, fetches, and reports where the data came from.
type Resolver struct {
	cache        storage.CacheRepo
	historical   *HistoricalReader
	orchestrator *Orchestrator
	cfg          ResolverConfig
	clock        func() time.Time

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewResolver wires a resolver.
func NewResolver(
	cache storage.CacheRepo,
	historical *HistoricalReader,
	orchestrator *Orchestrator,
	cfg ResolverConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Resolver {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultOrchestratorConfig().CacheTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultOrchestratorConfig().StoreTimeout
	}
	return &Resolver{
		cache:        cache,
		historical:   historical,
		orchestrator: orchestrator,
		cfg:          cfg,
		clock:        time.Now,
		logger:       logger,
		metrics:      m,
	}
}

// SetClock replaces the time source of the resolver and its orchestrator.
func (r *Resolver) SetClock(clock func() time.Time) {
	r.clock = clock
	r.orchestrator.SetClock(clock)
}

// Today returns the current calendar date in the configured location.
func (r *Resolver) Today() time.Time {
	return models.DateOf(r.clock().In(r.cfg.Location))
}

// Wait blocks until background refreshes have finished.
func (r *Resolver) Wait() {
	r.orchestrator.Wait()
}

// resolution carries per-request state between steps.
type resolution struct {
	req    models.FetchRequest
	class  period.Classification
	today  time.Time
	state  cacheState
	result *models.ResolutionResult
}

// Resolve answers req from the tier its period kind calls for. The returned
// error is always a *ValidationError; every other failure is reported in the
// result with Success=false.
func (r *Resolver) Resolve(ctx context.Context, req models.FetchRequest) (*models.ResolutionResult, error) {
	began := time.Now()
	today := r.Today()

	if err := ValidateRequest(req, today); err != nil {
		r.metrics.RecordValidationError()
		return nil, err
	}
	if !r.orchestrator.Supports(req.Platform) {
		r.metrics.RecordValidationError()
		return nil, &ValidationError{Field: "platform", Message: "no adapter configured for " + string(req.Platform)}
	}

	class := period.Classify(req.DateRange, today)
	res := &resolution{
		req:   req,
		class: class,
		today: today,
		result: &models.ResolutionResult{
			Debug: models.DebugInfo{
				RequestID:     requestID(ctx),
				PeriodKind:    class.Kind,
				PeriodID:      class.PeriodID,
				RequestReason: req.Reason,
			},
		},
	}

	switch {
	case class.Kind.IsCurrent():
		r.resolveCurrent(ctx, res)
	case class.Kind == models.PeriodHistorical:
		r.resolveHistorical(ctx, res)
	default:
		r.resolveUncached(ctx, res)
	}

	r.checkProvenance(res)
	res.result.Debug.Duration = time.Since(began)

	out := res.result
	r.metrics.RecordResolution(string(req.Platform), string(class.Kind), string(out.Debug.Source), out.Success, out.Debug.Duration)
	r.logger.Debug("resolved report request",
		zap.String("request_id", out.Debug.RequestID),
		zap.String("client_id", req.ClientID),
		zap.String("platform", string(req.Platform)),
		zap.String("range", req.DateRange.String()),
		zap.String("kind", string(class.Kind)),
		zap.String("source", string(out.Debug.Source)),
		zap.Bool("success", out.Success),
		zap.Bool("force_fresh", req.ForceFresh),
		zap.String("reason", req.Reason),
		zap.Duration("duration", out.Debug.Duration),
	)
	return out, nil
}

// Invalidate drops one cached period so the next request fetches live.
func (r *Resolver) Invalidate(ctx context.Context, key models.CacheKey) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	if err := r.cache.Invalidate(ctx, key); err != nil {
		r.metrics.RecordCacheOp(string(key.Tier), "invalidate", "error")
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	r.metrics.RecordCacheOp(string(key.Tier), "invalidate", "ok")
	return nil
}

type requestIDKey struct{}

// WithRequestID makes resolutions under ctx report id as Debug.RequestID.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return uuid.NewString()
}

// ResolveBoth resolves req for every supported platform concurrently. Each
// result is independent; a failure on one platform does not affect the other.
func (r *Resolver) ResolveBoth(ctx context.Context, req models.FetchRequest) (map[models.Platform]*models.ResolutionResult, error) {
	platforms := models.AllPlatforms()
	results := make(map[models.Platform]*models.ResolutionResult, len(platforms))
	errs := make([]error, len(platforms))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i, p := range platforms {
		wg.Add(1)
		go func(i int, p models.Platform) {
			defer wg.Done()
			pr := req
			pr.Platform = p
			res, err := r.Resolve(ctx, pr)
			if err != nil {
				errs[i] = err
				return
			}
			mu.Lock()
			results[p] = res
			mu.Unlock()
		}(i, p)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Resolver) resolveCurrent(ctx context.Context, res *resolution) {
	// The cache key stays on the canonical period; only the upstream range
	// stops at today.
	capped, wasCapped := res.req.DateRange.CapEnd(res.today)
	spec := FetchSpec{
		ClientID: res.req.ClientID,
		Platform: res.req.Platform,
		Range:    capped,
		Class:    res.class,
		Force:    res.req.ForceFresh,
	}
	debug := &res.result.Debug
	debug.CappedEnd = wasCapped

	if res.req.ForceFresh {
		debug.CachePolicy = models.CachePolicyForcedBypass
		// Peek only to report what the bypass skipped.
		if entry, err := r.readCache(ctx, spec.CacheKey()); err == nil && entry != nil {
			res.result.Validation.PotentialCacheBypassed = true
		}
		r.fetchLive(ctx, res, spec)
		return
	}

	debug.CachePolicy = models.CachePolicyCacheable
	entry, err := r.readCache(ctx, spec.CacheKey())
	if err != nil {
		r.logger.Warn("cache read failed, fetching live",
			zap.String("key", spec.CacheKey().String()),
			zap.Error(err),
		)
	}
	if entry == nil {
		res.state = cacheMiss
		r.fetchLive(ctx, res, spec)
		return
	}

	if entry.IsStale(r.clock(), r.cfg.CacheTTL) {
		res.state = cacheStale
		r.serveEntry(res, entry, models.SourceCacheStale)
		r.orchestrator.Refresh(ctx, spec)
		debug.RefreshTriggered = true
		return
	}

	res.state = cacheFresh
	r.serveEntry(res, entry, models.SourceCacheFresh)
}

func (r *Resolver) resolveHistorical(ctx context.Context, res *resolution) {
	debug := &res.result.Debug
	debug.CachePolicy = models.CachePolicyReadOnly
	debug.Source = models.SourceDatabase

	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	hist, err := r.historical.Read(ctx, res.req.ClientID, res.req.Platform, res.req.DateRange)
	if err != nil {
		r.fail(res, err, CodeStoreUnavailable)
		return
	}
	if hist == nil {
		snap := BuildSnapshot(nil)
		res.result.Success = true
		res.result.Data = &snap
		debug.NoData = true
		debug.Reason = ReasonNoHistoricalData
		return
	}

	snap := BuildSnapshot(hist.Campaigns)
	res.result.Success = true
	res.result.Data = &snap
	debug.HistoricalOrigin = hist.Origin
	if !hist.BackfilledAt.IsZero() {
		at := hist.BackfilledAt
		debug.LastUpdated = &at
	}
}

func (r *Resolver) resolveUncached(ctx context.Context, res *resolution) {
	res.result.Debug.CachePolicy = models.CachePolicyNotCacheable

	capped, wasCapped := res.req.DateRange.CapEnd(res.today)
	res.result.Debug.CappedEnd = wasCapped

	r.fetchLive(ctx, res, FetchSpec{
		ClientID: res.req.ClientID,
		Platform: res.req.Platform,
		Range:    capped,
		Class:    res.class,
		Force:    res.req.ForceFresh,
	})
}

func (r *Resolver) fetchLive(ctx context.Context, res *resolution, spec FetchSpec) {
	debug := &res.result.Debug
	debug.Source = models.SourceLiveAPI

	out, err := r.orchestrator.Fetch(ctx, spec)
	if err != nil {
		r.fail(res, err, CodeInternal)
		return
	}

	// A flight that found the entry already refreshed answers from cache.
	if out.Source == models.SourceCacheFresh {
		res.state = cacheFresh
	}

	snap := out.Snapshot
	res.result.Success = true
	res.result.Data = &snap
	debug.Source = out.Source
	debug.SharedFetch = out.Shared
	at := out.FetchedAt
	debug.LastUpdated = &at
}

func (r *Resolver) serveEntry(res *resolution, entry *models.CacheEntry, source models.Source) {
	snap := entry.Snapshot
	res.result.Success = true
	res.result.Data = &snap
	res.result.Debug.Source = source
	at := entry.LastUpdated
	res.result.Debug.LastUpdated = &at
	r.metrics.RecordCacheOp(string(entry.Key.Tier), "get", string(source))
}

func (r *Resolver) readCache(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	entry, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		r.metrics.RecordCacheOp(string(key.Tier), "get", "error")
	case entry == nil:
		r.metrics.RecordCacheOp(string(key.Tier), "get", "miss")
	}
	return entry, err
}

// fail records err on the result. fallback is the error code used when err
// is neither an upstream error, a timeout nor a cancellation.
func (r *Resolver) fail(res *resolution, err error, fallback string) {
	debug := &res.result.Debug
	res.result.Success = false
	res.result.Data = nil
	res.result.Err = err
	debug.Reason = err.Error()

	var (
		ue *UpstreamError
		te *TimeoutError
	)
	switch {
	case errors.As(err, &ue):
		debug.ErrorCode = ue.Code
		debug.Reason = ue.Message
	case errors.As(err, &te):
		debug.ErrorCode = CodeTimeout
	case errors.Is(err, context.Canceled):
		debug.ErrorCode = CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		debug.ErrorCode = CodeTimeout
	default:
		debug.ErrorCode = fallback
	}

	r.logger.Warn("report resolution failed",
		zap.String("request_id", debug.RequestID),
		zap.String("client_id", res.req.ClientID),
		zap.String("platform", string(res.req.Platform)),
		zap.String("kind", string(res.class.Kind)),
		zap.String("error_code", debug.ErrorCode),
		zap.Error(err),
	)
}

// checkProvenance compares the tier used against the tier the rules expect.
// It only annotates the result.
func (r *Resolver) checkProvenance(res *resolution) {
	v := &res.result.Validation
	v.ExpectedSource = expectedSource(res.class.Kind, res.req.ForceFresh, res.state)
	v.ActualSource = res.result.Debug.Source
	v.IsConsistent = v.ExpectedSource == v.ActualSource

	if !v.IsConsistent {
		r.metrics.RecordInconsistency(string(res.req.Platform), string(v.ExpectedSource), string(v.ActualSource))
		r.logger.Warn("source inconsistency",
			zap.String("request_id", res.result.Debug.RequestID),
			zap.String("client_id", res.req.ClientID),
			zap.String("platform", string(res.req.Platform)),
			zap.String("kind", string(res.class.Kind)),
			zap.String("expected", string(v.ExpectedSource)),
			zap.String("actual", string(v.ActualSource)),
		)
	}
}
