package models

import "time"

// PeriodKind is the classification of a requested date range.
type PeriodKind string

const (
	PeriodCurrentMonth PeriodKind = "current-month"
	PeriodCurrentWeek  PeriodKind = "current-week"
	PeriodHistorical   PeriodKind = "historical"
	PeriodCustom       PeriodKind = "custom"
	PeriodAllTime      PeriodKind = "all-time"
)

// IsCurrent reports whether k is one of the cacheable current-period kinds.
func (k PeriodKind) IsCurrent() bool {
	return k == PeriodCurrentMonth || k == PeriodCurrentWeek
}

// Source names the tier that answered a request.
type Source string

const (
	SourceCacheFresh Source = "cache-fresh"
	SourceCacheStale Source = "cache-stale"
	SourceLiveAPI    Source = "live-api"
	SourceDatabase   Source = "database"
)

// CachePolicy describes how the cache was treated for a request.
type CachePolicy string

const (
	CachePolicyCacheable    CachePolicy = "cacheable"
	CachePolicyForcedBypass CachePolicy = "forced-bypass"
	CachePolicyNotCacheable CachePolicy = "not-cacheable"
	CachePolicyReadOnly     CachePolicy = "historical-read-only"
)

// FetchRequest is the input of a resolution.
type FetchRequest struct {
	ClientID   string    `json:"client_id" validate:"required,max=128"`
	DateRange  DateRange `json:"date_range"`
	Platform   Platform  `json:"platform" validate:"required,oneof=meta google"`
	ForceFresh bool      `json:"force_fresh"`
	Reason     string    `json:"reason,omitempty" validate:"max=256"` // observability only
}

// DebugInfo carries source provenance and diagnostics.
type DebugInfo struct {
	RequestID        string        `json:"request_id"`
	Source           Source        `json:"source,omitempty"`
	CachePolicy      CachePolicy   `json:"cache_policy"`
	PeriodKind       PeriodKind    `json:"period_kind"`
	PeriodID         string        `json:"period_id,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	ErrorCode        string        `json:"error_code,omitempty"`
	RequestReason    string        `json:"request_reason,omitempty"`
	NoData           bool          `json:"no_data,omitempty"`
	CappedEnd        bool          `json:"capped_end,omitempty"`
	SharedFetch      bool          `json:"shared_fetch,omitempty"`
	RefreshTriggered bool          `json:"refresh_triggered,omitempty"`
	HistoricalOrigin string        `json:"historical_origin,omitempty"`
	LastUpdated      *time.Time    `json:"last_updated,omitempty"`
	Duration         time.Duration `json:"duration_ns"`
}

// ValidationInfo compares the tier the rules expected with the one used.
type ValidationInfo struct {
	ExpectedSource         Source `json:"expected_source"`
	ActualSource           Source `json:"actual_source"`
	IsConsistent           bool   `json:"is_consistent"`
	PotentialCacheBypassed bool   `json:"potential_cache_bypassed"`
}

// ResolutionResult is produced fresh for every call and never persisted.
type ResolutionResult struct {
	Success    bool           `json:"success"`
	Data       *Snapshot      `json:"data,omitempty"`
	Debug      DebugInfo      `json:"debug"`
	Validation ValidationInfo `json:"validation"`

	// Err is the typed failure behind Success=false, for Go callers.
	Err error `json:"-"`
}
