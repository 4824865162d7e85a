package models

import (
	"fmt"
	"time"
)

// Tier is one of the two independent current-period caches.
type Tier string

const (
	TierMonth Tier = "month"
	TierWeek  Tier = "week"
)

// SourceOfTruth records how a cache entry was produced.
type SourceOfTruth string

const (
	SourceOfTruthLiveAPI  SourceOfTruth = "live-api"
	SourceOfTruthBackfill SourceOfTruth = "backfill"
)

// CacheKey identifies one cache row.
type CacheKey struct {
	ClientID string   `json:"client_id"`
	Platform Platform `json:"platform"`
	PeriodID string   `json:"period_id"` // "2025-09" or "2025-W36"
	Tier     Tier     `json:"tier"`
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.ClientID, k.Platform, k.Tier, k.PeriodID)
}

// CacheEntry is a full snapshot for a canonical current period.
type CacheEntry struct {
	Key           CacheKey      `json:"key"`
	Snapshot      Snapshot      `json:"snapshot"`
	LastUpdated   time.Time     `json:"last_updated"`
	SourceOfTruth SourceOfTruth `json:"source_of_truth"`
}

// IsStale reports whether the entry is older than ttl at now.
func (e *CacheEntry) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.LastUpdated) > ttl
}

// Age returns how long ago the entry was written.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.LastUpdated)
}
