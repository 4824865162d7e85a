package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the report resolver.
// All Record/Set methods are safe on a nil receiver.
type Metrics struct {
	// Resolution metrics
	Resolutions       *prometheus.CounterVec
	ResolutionLatency *prometheus.HistogramVec
	Inconsistencies   *prometheus.CounterVec
	ValidationErrors  prometheus.Counter

	// Live fetch metrics
	LiveFetches      *prometheus.CounterVec
	LiveFetchLatency *prometheus.HistogramVec
	SharedWaiters    *prometheus.CounterVec
	Refreshes        *prometheus.CounterVec

	// Store metrics
	CacheOps      *prometheus.CounterVec
	HistoricalOps *prometheus.CounterVec

	// Upstream health
	BreakerState *prometheus.GaugeVec

	// Store connection pools
	PoolConns *prometheus.GaugeVec

	// HTTP
	RateLimitHits *prometheus.CounterVec

	registry prometheus.Gatherer
}

// NewMetrics creates and registers all metrics on reg. A nil reg uses a
// fresh registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	m := &Metrics{
		Resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Resolutions by platform, period kind and answering source",
			},
			[]string{"platform", "kind", "source", "success"},
		),
		ResolutionLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_latency_seconds",
				Help:      "End-to-end resolution latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 15, 45},
			},
			[]string{"source"},
		),
		Inconsistencies: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_inconsistencies_total",
				Help:      "Resolutions whose actual source differed from the expected one",
			},
			[]string{"platform", "expected", "actual"},
		),
		ValidationErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_errors_total",
				Help:      "Requests rejected before any I/O",
			},
		),
		LiveFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_fetches_total",
				Help:      "Upstream platform fetches by outcome",
			},
			[]string{"platform", "outcome"},
		),
		LiveFetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "live_fetch_latency_seconds",
				Help:      "Upstream platform fetch latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"platform"},
		),
		SharedWaiters: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shared_fetch_waiters_total",
				Help:      "Callers served by another caller's in-flight fetch",
			},
			[]string{"platform"},
		),
		Refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "background_refreshes_total",
				Help:      "Background refreshes of stale cache entries by outcome",
			},
			[]string{"platform", "outcome"},
		),
		CacheOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Current-period cache operations by tier and result",
			},
			[]string{"tier", "op", "result"},
		),
		HistoricalOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "historical_reads_total",
				Help:      "Historical store reads by origin and result",
			},
			[]string{"origin", "result"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),
		PoolConns: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_pool_connections",
				Help:      "Store connection pool size by state",
			},
			[]string{"store", "state"},
		),
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "HTTP rate limit rejections",
			},
			[]string{"endpoint"},
		),
		registry: reg,
	}

	return m
}

// Handler returns the Prometheus HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordResolution records a finished resolution.
func (m *Metrics) RecordResolution(platform, kind, source string, success bool, latency time.Duration) {
	if m == nil {
		return
	}
	ok := "false"
	if success {
		ok = "true"
	}
	m.Resolutions.WithLabelValues(platform, kind, source, ok).Inc()
	m.ResolutionLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordInconsistency records an expected/actual source mismatch.
func (m *Metrics) RecordInconsistency(platform, expected, actual string) {
	if m == nil {
		return
	}
	m.Inconsistencies.WithLabelValues(platform, expected, actual).Inc()
}

// RecordValidationError records a rejected request.
func (m *Metrics) RecordValidationError() {
	if m == nil {
		return
	}
	m.ValidationErrors.Inc()
}

// RecordLiveFetch records one upstream fetch.
func (m *Metrics) RecordLiveFetch(platform, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.LiveFetches.WithLabelValues(platform, outcome).Inc()
	m.LiveFetchLatency.WithLabelValues(platform).Observe(latency.Seconds())
}

// RecordSharedWaiter records a caller that joined an in-flight fetch.
func (m *Metrics) RecordSharedWaiter(platform string) {
	if m == nil {
		return
	}
	m.SharedWaiters.WithLabelValues(platform).Inc()
}

// RecordRefresh records a background refresh outcome.
func (m *Metrics) RecordRefresh(platform, outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(platform, outcome).Inc()
}

// RecordCacheOp records a cache get/put/invalidate.
func (m *Metrics) RecordCacheOp(tier, op, result string) {
	if m == nil {
		return
	}
	m.CacheOps.WithLabelValues(tier, op, result).Inc()
}

// RecordHistoricalRead records a historical store read.
func (m *Metrics) RecordHistoricalRead(origin, result string) {
	if m == nil {
		return
	}
	m.HistoricalOps.WithLabelValues(origin, result).Inc()
}

// SetBreakerState updates the breaker gauge.
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(state)
}

// SetPoolConns updates a store pool gauge.
func (m *Metrics) SetPoolConns(store, state string, n float64) {
	if m == nil {
		return
	}
	m.PoolConns.WithLabelValues(store, state).Set(n)
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
