package reporting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/platform"
	"github.com/radiusdt/adreport/internal/storage"
)

// fakeAdapter is a scripted platform adapter.
type fakeAdapter struct {
	platform models.Platform

	mu     sync.Mutex
	calls  int
	ranges []models.DateRange
	rows   []models.RawCampaign
	errs   []error // returned in order, one per call, before rows

	// onCall runs at the start of every call; n starts at 1.
	onCall func(ctx context.Context, n int) error
	called chan struct{}
}

func newFakeAdapter(p models.Platform, rows ...models.RawCampaign) *fakeAdapter {
	return &fakeAdapter{platform: p, rows: rows, called: make(chan struct{}, 64)}
}

func (f *fakeAdapter) Platform() models.Platform { return f.platform }

func (f *fakeAdapter) ActionTypeMap() platform.ActionTypeMap {
	return platform.ActionTypeMap{
		Reservations:     []string{"purchase"},
		ReservationValue: []string{"purchase"},
	}
}

func (f *fakeAdapter) FetchInsights(ctx context.Context, _ string, r models.DateRange) ([]models.RawCampaign, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.ranges = append(f.ranges, r)
	onCall := f.onCall
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	rows := append([]models.RawCampaign(nil), f.rows...)
	f.mu.Unlock()

	select {
	case f.called <- struct{}{}:
	default:
	}
	if onCall != nil {
		if hookErr := onCall(ctx, n); hookErr != nil {
			return nil, hookErr
		}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) LastRange() models.DateRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ranges[len(f.ranges)-1]
}

func (f *fakeAdapter) setRows(rows ...models.RawCampaign) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
}

func (f *fakeAdapter) setErrs(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = errs
}

func (f *fakeAdapter) waitCalled(t *testing.T) {
	t.Helper()
	select {
	case <-f.called:
	case <-time.After(2 * time.Second):
		t.Fatal("platform was not called")
	}
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	resolver *Resolver
	orch     *Orchestrator
	cache    *storage.InMemoryCacheRepo
	hist     *storage.InMemoryHistoricalRepo
	daily    *storage.InMemoryDailyKPIRepo
	accounts *storage.InMemoryAccountRepo
	meta     *fakeAdapter
	google   *fakeAdapter
	clock    *testClock
	metrics  *metrics.Metrics
}

// Monday 2025-09-15: current month 2025-09, current ISO week 2025-W38 (Sep 15-21).
var testNow = time.Date(2025, time.September, 15, 10, 0, 0, 0, time.UTC)

var sampleRow = models.RawCampaign{
	ID:          "c1",
	Name:        "Autumn",
	Spend:       120,
	Impressions: 10000,
	Clicks:      200,
	Actions:     []models.ActionStat{{ActionType: "purchase", Value: 3}},
	ActionValues: []models.ActionStat{
		{ActionType: "purchase", Value: 600},
	},
}

func newHarness(t *testing.T, mutate ...func(*OrchestratorConfig)) *harness {
	t.Helper()

	cfg := OrchestratorConfig{
		FetchTimeout:  2 * time.Second,
		CacheTTL:      3 * time.Hour,
		StoreTimeout:  time.Second,
		RetryMax:      3,
		RetryInitial:  time.Millisecond,
		UpstreamRPS:   0,
		UpstreamBurst: 1,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{
		cache:    storage.NewInMemoryCacheRepo(),
		hist:     storage.NewInMemoryHistoricalRepo(),
		daily:    storage.NewInMemoryDailyKPIRepo(),
		accounts: storage.NewInMemoryAccountRepo(),
		meta:     newFakeAdapter(models.PlatformMeta, sampleRow),
		google:   newFakeAdapter(models.PlatformGoogle, sampleRow),
		clock:    &testClock{now: testNow},
		metrics:  metrics.NewMetrics("test", prometheus.NewRegistry()),
	}
	h.accounts.Link("client-1", models.PlatformMeta, "act_1")
	h.accounts.Link("client-1", models.PlatformGoogle, "123-456")

	logger := zap.NewNop()
	h.orch = NewOrchestrator(
		[]platform.Adapter{h.meta, h.google},
		h.accounts, h.cache, cfg, logger, h.metrics,
	)
	h.resolver = NewResolver(
		h.cache,
		NewHistoricalReader(h.hist, h.daily, logger, h.metrics),
		h.orch,
		ResolverConfig{CacheTTL: cfg.CacheTTL, StoreTimeout: cfg.StoreTimeout, Location: time.UTC},
		logger, h.metrics,
	)
	h.resolver.SetClock(h.clock.Now)
	t.Cleanup(h.resolver.Wait)
	return h
}

func (h *harness) resolve(t *testing.T, start, end time.Time, force bool) *models.ResolutionResult {
	t.Helper()
	res, err := h.resolver.Resolve(context.Background(), models.FetchRequest{
		ClientID:   "client-1",
		Platform:   models.PlatformMeta,
		DateRange:  models.DateRange{Start: start, End: end},
		ForceFresh: force,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return res
}

func monthKey() models.CacheKey {
	return models.CacheKey{ClientID: "client-1", Platform: models.PlatformMeta, PeriodID: "2025-09", Tier: models.TierMonth}
}

func (h *harness) seedCache(t *testing.T, key models.CacheKey, age time.Duration, spend float64) {
	t.Helper()
	snap := BuildSnapshot([]models.CampaignMetrics{{ID: "cached", Spend: spend, Impressions: 100, Clicks: 10}})
	ok, err := h.cache.Put(context.Background(), &models.CacheEntry{
		Key:           key,
		Snapshot:      snap,
		LastUpdated:   h.clock.Now().Add(-age),
		SourceOfTruth: models.SourceOfTruthLiveAPI,
	})
	if err != nil || !ok {
		t.Fatalf("seed cache: ok=%v err=%v", ok, err)
	}
}

var (
	monthStart = models.Date(2025, time.September, 1)
	monthEnd   = models.Date(2025, time.September, 30)
	weekStart  = models.Date(2025, time.September, 15)
	weekEnd    = models.Date(2025, time.September, 21)
)
