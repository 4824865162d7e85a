package storage

import (
	"context"

	"github.com/radiusdt/adreport/internal/models"
)

// =============================================
// CURRENT-PERIOD CACHE
// =============================================

// CacheRepo stores full snapshots for the current month and current ISO week.
//
// Put replaces the whole entry or nothing. It is a compare-and-set on
// LastUpdated: a write older than the stored entry is rejected and reported
// as (false, nil). A write with an equal timestamp overwrites.
type CacheRepo interface {
	// Get returns nil, nil on miss.
	Get(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry) (bool, error)
	Invalidate(ctx context.Context, key models.CacheKey) error
}

// =============================================
// HISTORICAL STORE
// =============================================

// HistoricalRepo reads precomputed summaries of fully elapsed periods.
// Rows are written by the backfill job and are never modified here.
type HistoricalRepo interface {
	// GetSummary returns nil, nil when no summary exists.
	GetSummary(ctx context.Context, key models.HistoricalKey) (*models.HistoricalSummary, error)
}

// DailyKPIRepo reads per-day campaign rows.
type DailyKPIRepo interface {
	// SumCampaigns sums rows in r per campaign. An empty slice means no rows.
	SumCampaigns(ctx context.Context, clientID string, platform models.Platform, r models.DateRange) ([]models.CampaignMetrics, error)
}

// =============================================
// ACCOUNT DIRECTORY
// =============================================

// AccountRepo maps a client to its ad account id on a platform.
type AccountRepo interface {
	// GetAccountID returns "", nil when the client has no linked account.
	GetAccountID(ctx context.Context, clientID string, platform models.Platform) (string, error)
}
