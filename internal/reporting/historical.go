package reporting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/period"
	"github.com/radiusdt/adreport/internal/storage"
)

// Historical origins reported in DebugInfo.HistoricalOrigin.
const (
	OriginSummary = "summary"
	OriginDaily   = "daily"
)

// HistoricalResult is what the historical store holds for a range.
type HistoricalResult struct {
	Campaigns    []models.CampaignMetrics
	Origin       string
	BackfilledAt time.Time // zero for daily rows
}

// HistoricalReader reads elapsed periods. Whole months and ISO weeks come
// from backfilled summaries; any other range, or a missing summary, is summed
// from daily rows. It never calls a platform.
type HistoricalReader struct {
	summaries storage.HistoricalRepo
	daily     storage.DailyKPIRepo // optional
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewHistoricalReader creates a reader. daily may be nil when no daily KPI
// store is configured.
func NewHistoricalReader(summaries storage.HistoricalRepo, daily storage.DailyKPIRepo, logger *zap.Logger, m *metrics.Metrics) *HistoricalReader {
	return &HistoricalReader{
		summaries: summaries,
		daily:     daily,
		logger:    logger,
		metrics:   m,
	}
}

// Read returns nil, nil when neither store has data for r.
func (h *HistoricalReader) Read(ctx context.Context, clientID string, p models.Platform, r models.DateRange) (*HistoricalResult, error) {
	if pt, start, ok := period.HistoricalPeriod(r); ok && h.summaries != nil {
		summary, err := h.summaries.GetSummary(ctx, models.HistoricalKey{
			ClientID:    clientID,
			Platform:    p,
			PeriodType:  pt,
			PeriodStart: start,
		})
		if err != nil {
			h.metrics.RecordHistoricalRead(OriginSummary, "error")
			return nil, fmt.Errorf("failed to read historical summary: %w", err)
		}
		if summary != nil {
			h.metrics.RecordHistoricalRead(OriginSummary, "hit")
			return &HistoricalResult{
				Campaigns:    summary.Campaigns,
				Origin:       OriginSummary,
				BackfilledAt: summary.BackfilledAt,
			}, nil
		}
		h.metrics.RecordHistoricalRead(OriginSummary, "miss")
		h.logger.Debug("historical summary missing, falling back to daily rows",
			zap.String("client_id", clientID),
			zap.String("platform", string(p)),
			zap.String("period_type", string(pt)),
			zap.String("range", r.String()),
		)
	}

	if h.daily == nil {
		return nil, nil
	}

	campaigns, err := h.daily.SumCampaigns(ctx, clientID, p, r)
	if err != nil {
		h.metrics.RecordHistoricalRead(OriginDaily, "error")
		return nil, fmt.Errorf("failed to sum daily kpis: %w", err)
	}
	if len(campaigns) == 0 {
		h.metrics.RecordHistoricalRead(OriginDaily, "miss")
		return nil, nil
	}
	h.metrics.RecordHistoricalRead(OriginDaily, "hit")
	return &HistoricalResult{Campaigns: campaigns, Origin: OriginDaily}, nil
}
