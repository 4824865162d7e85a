package models

import "time"

// PeriodType is the granularity of a precomputed historical summary.
type PeriodType string

const (
	PeriodTypeMonthly PeriodType = "monthly"
	PeriodTypeWeekly  PeriodType = "weekly"
)

// HistoricalKey identifies one historical summary row.
type HistoricalKey struct {
	ClientID    string
	Platform    Platform
	PeriodType  PeriodType
	PeriodStart time.Time
}

// HistoricalSummary is a backfilled, immutable summary of an elapsed period.
type HistoricalSummary struct {
	Key          HistoricalKey
	PeriodEnd    time.Time
	Campaigns    []CampaignMetrics
	BackfilledAt time.Time
}

// DailyKPIRow is one campaign's numbers for one day.
type DailyKPIRow struct {
	ClientID     string
	Platform     Platform
	Date         time.Time
	CampaignID   string
	CampaignName string
	Spend        float64
	Impressions  int64
	Clicks       int64
	Funnel       Funnel
}
