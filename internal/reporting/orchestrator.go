package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/period"
	"github.com/radiusdt/adreport/internal/platform"
	"github.com/radiusdt/adreport/internal/storage"
)

// OrchestratorConfig bounds upstream calls.
type OrchestratorConfig struct {
	FetchTimeout  time.Duration
	CacheTTL      time.Duration
	StoreTimeout  time.Duration
	RetryMax      int
	RetryInitial  time.Duration
	UpstreamRPS   float64
	UpstreamBurst int
}

// DefaultOrchestratorConfig returns production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		FetchTimeout:  45 * time.Second,
		CacheTTL:      3 * time.Hour,
		StoreTimeout:  5 * time.Second,
		RetryMax:      3,
		RetryInitial:  500 * time.Millisecond,
		UpstreamRPS:   5,
		UpstreamBurst: 10,
	}
}

// FetchSpec describes one live fetch.
type FetchSpec struct {
	ClientID string
	Platform models.Platform
	Range    models.DateRange // already capped at today
	Class    period.Classification
	Force    bool
}

// CacheKey returns the cache row a cacheable spec writes to.
func (s FetchSpec) CacheKey() models.CacheKey {
	return models.CacheKey{
		ClientID: s.ClientID,
		Platform: s.Platform,
		PeriodID: s.Class.PeriodID,
		Tier:     s.Class.Tier,
	}
}

// flightKey is the in-flight dedup key. Forced and regular fetches of the
// same period share it, so at most one upstream call per key is outstanding.
func (s FetchSpec) flightKey() string {
	if !s.Class.Cacheable {
		return fmt.Sprintf("%s:%s:%s", s.ClientID, s.Platform, s.Range)
	}
	return fmt.Sprintf("%s:%s:%s", s.ClientID, s.Platform, s.Class.PeriodID)
}

// FetchOutcome is the result of a fetch.
type FetchOutcome struct {
	Snapshot  models.Snapshot
	FetchedAt time.Time
	// Source is live-api, or cache-fresh when the flight found that another
	// fetch had just refreshed the entry.
	Source  models.Source
	Shared  bool
	Written bool
}

// Orchestrator performs live platform fetches with in-flight dedup,
// a wall-clock budget, retries on transient errors and write-through.
type Orchestrator struct {
	adapters map[models.Platform]platform.Adapter
	accounts storage.AccountRepo
	cache    storage.CacheRepo
	cfg      OrchestratorConfig

	limiters map[models.Platform]*rate.Limiter
	group    singleflight.Group
	flights  atomic.Uint64 // sequence of started flights
	refresh  sync.WaitGroup
	clock    func() time.Time

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewOrchestrator creates an orchestrator over the given adapters.
func NewOrchestrator(
	adapters []platform.Adapter,
	accounts storage.AccountRepo,
	cache storage.CacheRepo,
	cfg OrchestratorConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}

	o := &Orchestrator{
		adapters: make(map[models.Platform]platform.Adapter, len(adapters)),
		accounts: accounts,
		cache:    cache,
		cfg:      cfg,
		limiters: make(map[models.Platform]*rate.Limiter, len(adapters)),
		clock:    time.Now,
		logger:   logger,
		metrics:  m,
	}
	for _, a := range adapters {
		o.adapters[a.Platform()] = a
		limit := rate.Inf
		if cfg.UpstreamRPS > 0 {
			limit = rate.Limit(cfg.UpstreamRPS)
		}
		o.limiters[a.Platform()] = rate.NewLimiter(limit, max(cfg.UpstreamBurst, 1))
	}
	return o
}

// SetClock replaces the time source.
func (o *Orchestrator) SetClock(clock func() time.Time) {
	o.clock = clock
}

// Supports reports whether an adapter is registered for p.
func (o *Orchestrator) Supports(p models.Platform) bool {
	_, ok := o.adapters[p]
	return ok
}

// flightResult is what one flight hands to all of its callers.
type flightResult struct {
	seq uint64
	out *FetchOutcome
	err error
}

// servesForced reports whether a forced caller that arrived when the flight
// sequence stood at after may use this result: the flight must have started
// after it and actually called upstream.
func (f *flightResult) servesForced(after uint64) bool {
	if f.seq <= after {
		return false
	}
	return f.err != nil || f.out.Source == models.SourceLiveAPI
}

// Fetch runs or joins the live fetch for spec. Cancelling ctx abandons only
// this caller's wait; the shared fetch and its write-through continue.
//
// A forced caller that finds an older flight for the key waits for it to
// finish and then runs or joins the next one, so it never receives data
// fetched before it asked and never overlaps another upstream call.
func (o *Orchestrator) Fetch(ctx context.Context, spec FetchSpec) (*FetchOutcome, error) {
	detached := context.WithoutCancel(ctx)
	key := spec.flightKey()
	after := o.flights.Load()

	for {
		ch := o.group.DoChan(key, func() (any, error) {
			f := &flightResult{seq: o.flights.Add(1)}
			f.out, f.err = o.run(detached, spec)
			return f, nil
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}

		f := res.Val.(*flightResult)
		if spec.Force && !f.servesForced(after) {
			o.logger.Debug("forced fetch waited out an older flight",
				zap.String("key", key),
				zap.Uint64("flight", f.seq),
			)
			continue
		}

		if res.Shared {
			o.metrics.RecordSharedWaiter(string(spec.Platform))
		}
		if f.err != nil {
			return nil, f.err
		}
		out := *f.out
		out.Snapshot.Campaigns = append([]models.CampaignMetrics(nil), out.Snapshot.Campaigns...)
		out.Shared = res.Shared
		return &out, nil
	}
}

// Refresh re-fetches a stale cacheable entry in the background. It never
// blocks the caller and outlives ctx.
func (o *Orchestrator) Refresh(ctx context.Context, spec FetchSpec) {
	spec.Force = false
	detached := context.WithoutCancel(ctx)

	o.refresh.Add(1)
	go func() {
		defer o.refresh.Done()

		out, err := o.Fetch(detached, spec)
		if err != nil {
			o.metrics.RecordRefresh(string(spec.Platform), "error")
			o.logger.Error("background refresh failed",
				zap.String("client_id", spec.ClientID),
				zap.String("platform", string(spec.Platform)),
				zap.String("period_id", spec.Class.PeriodID),
				zap.Error(err),
			)
			return
		}
		outcome := "refreshed"
		if out.Source == models.SourceCacheFresh {
			outcome = "already_fresh"
		}
		o.metrics.RecordRefresh(string(spec.Platform), outcome)
	}()
}

// Wait blocks until all background refreshes have finished.
func (o *Orchestrator) Wait() {
	o.refresh.Wait()
}

func (o *Orchestrator) run(ctx context.Context, spec FetchSpec) (*FetchOutcome, error) {
	adapter, ok := o.adapters[spec.Platform]
	if !ok {
		return nil, &ValidationError{Field: "platform", Message: fmt.Sprintf("no adapter for %q", spec.Platform)}
	}

	// A caller that missed the cache just before the previous flight for this
	// key finished would otherwise start a second upstream call.
	if spec.Class.Cacheable && !spec.Force {
		if entry := o.freshEntry(ctx, spec.CacheKey()); entry != nil {
			return &FetchOutcome{
				Snapshot:  entry.Snapshot,
				FetchedAt: entry.LastUpdated,
				Source:    models.SourceCacheFresh,
			}, nil
		}
	}

	accountID, err := o.accountID(ctx, spec)
	if err != nil {
		return nil, err
	}

	started := o.clock()
	fetchStart := time.Now()
	raw, err := o.callUpstream(ctx, adapter, accountID, spec.Range)
	latency := time.Since(fetchStart)
	if err != nil {
		o.metrics.RecordLiveFetch(string(spec.Platform), fetchOutcome(err), latency)
		o.logger.Warn("live fetch failed",
			zap.String("client_id", spec.ClientID),
			zap.String("platform", string(spec.Platform)),
			zap.String("range", spec.Range.String()),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, err
	}
	o.metrics.RecordLiveFetch(string(spec.Platform), "success", latency)

	out := &FetchOutcome{
		Snapshot:  BuildSnapshot(Normalize(raw, adapter.ActionTypeMap())),
		FetchedAt: started,
		Source:    models.SourceLiveAPI,
	}
	if spec.Class.Cacheable {
		out.Written = o.writeThrough(ctx, spec, out.Snapshot, started)
	}
	return out, nil
}

func (o *Orchestrator) freshEntry(ctx context.Context, key models.CacheKey) *models.CacheEntry {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	entry, err := o.cache.Get(ctx, key)
	if err != nil || entry == nil || entry.IsStale(o.clock(), o.cfg.CacheTTL) {
		return nil
	}
	return entry
}

func (o *Orchestrator) accountID(ctx context.Context, spec FetchSpec) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	id, err := o.accounts.GetAccountID(ctx, spec.ClientID, spec.Platform)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s account: %w", spec.Platform, err)
	}
	if id == "" {
		return "", &UpstreamError{
			Platform: spec.Platform,
			Code:     CodeAccountNotLinked,
			Message:  fmt.Sprintf("client %s has no linked %s account", spec.ClientID, spec.Platform),
		}
	}
	return id, nil
}

// callUpstream enforces the wall-clock budget. The fetch runs in its own
// goroutine so a hung upstream that ignores ctx still yields a TimeoutError.
func (o *Orchestrator) callUpstream(ctx context.Context, a platform.Adapter, accountID string, r models.DateRange) ([]models.RawCampaign, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	type result struct {
		rows []models.RawCampaign
		err  error
	}
	done := make(chan result, 1)
	go func() {
		rows, err := o.fetchWithRetry(ctx, a, accountID, r)
		done <- result{rows: rows, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Platform: a.Platform(), Budget: o.cfg.FetchTimeout}
		}
		return res.rows, res.err
	case <-ctx.Done():
		return nil, &TimeoutError{Platform: a.Platform(), Budget: o.cfg.FetchTimeout}
	}
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, a platform.Adapter, accountID string, r models.DateRange) ([]models.RawCampaign, error) {
	limiter := o.limiters[a.Platform()]

	operation := func() ([]models.RawCampaign, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(&platform.Error{
				Code:    platform.CodeRateLimited,
				Message: fmt.Sprintf("local %s rate limit: %v", a.Platform(), err),
			})
		}
		rows, err := a.FetchInsights(ctx, accountID, r)
		if err == nil {
			return rows, nil
		}
		var pe *platform.Error
		if errors.As(err, &pe) && !pe.Transient() {
			return nil, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RetryInitial

	rows, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(o.cfg.RetryMax)),
		backoff.WithMaxElapsedTime(o.cfg.FetchTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.logger.Debug("retrying live fetch",
				zap.String("platform", string(a.Platform())),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return rows, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	var pe *platform.Error
	if errors.As(err, &pe) {
		return nil, &UpstreamError{Platform: a.Platform(), Code: pe.Code, Message: pe.Message}
	}
	return nil, err
}

func (o *Orchestrator) writeThrough(ctx context.Context, spec FetchSpec, snap models.Snapshot, fetchedAt time.Time) bool {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	tier := string(spec.Class.Tier)
	ok, err := o.cache.Put(ctx, &models.CacheEntry{
		Key:           spec.CacheKey(),
		Snapshot:      snap,
		LastUpdated:   fetchedAt,
		SourceOfTruth: models.SourceOfTruthLiveAPI,
	})
	if err != nil {
		o.metrics.RecordCacheOp(tier, "put", "error")
		o.logger.Warn("cache write-through failed",
			zap.String("key", spec.CacheKey().String()),
			zap.Error(err),
		)
		return false
	}
	if !ok {
		o.metrics.RecordCacheOp(tier, "put", "superseded")
		o.logger.Debug("cache write superseded by newer entry",
			zap.String("key", spec.CacheKey().String()),
			zap.Time("fetched_at", fetchedAt),
		)
		return false
	}
	o.metrics.RecordCacheOp(tier, "put", "written")
	return true
}

func fetchOutcome(err error) string {
	var (
		te *TimeoutError
		ue *UpstreamError
	)
	switch {
	case errors.As(err, &te):
		return CodeTimeout
	case errors.As(err, &ue):
		return ue.Code
	default:
		return "error"
	}
}
