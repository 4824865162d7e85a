package reporting

import (
	"github.com/shopspring/decimal"

	"github.com/radiusdt/adreport/internal/models"
)

// BuildSnapshot derives Stats and ConversionMetrics from campaigns and
// returns them together. Campaign ratios are recomputed on the way.
func BuildSnapshot(campaigns []models.CampaignMetrics) models.Snapshot {
	list := make([]models.CampaignMetrics, len(campaigns))
	copy(list, campaigns)
	for i := range list {
		deriveRatios(&list[i])
	}
	stats, conv := Aggregate(list)
	return models.Snapshot{Stats: stats, Conversions: conv, Campaigns: list}
}

// Aggregate sums a campaign list. Averages are weighted: CTR by impressions
// and CPC by clicks.
func Aggregate(campaigns []models.CampaignMetrics) (models.Stats, models.ConversionMetrics) {
	var (
		spend       = decimal.Zero
		resValue    = decimal.Zero
		impressions int64
		clicks      int64
		funnel      models.Funnel
	)
	for _, c := range campaigns {
		spend = spend.Add(decimal.NewFromFloat(c.Spend))
		resValue = resValue.Add(decimal.NewFromFloat(c.Funnel.ReservationValue))
		impressions += c.Impressions
		clicks += c.Clicks
		funnel = funnel.Add(c.Funnel)
	}

	stats := models.Stats{
		TotalSpend:       spend.InexactFloat64(),
		TotalImpressions: impressions,
		TotalClicks:      clicks,
		CampaignCount:    len(campaigns),
	}
	if impressions > 0 {
		stats.AverageCTR = float64(clicks) / float64(impressions) * 100
	}
	if clicks > 0 {
		stats.AverageCPC = spend.Div(decimal.NewFromInt(clicks)).InexactFloat64()
	}

	conv := models.ConversionMetrics{
		Step1:            funnel.Step1,
		Step2:            funnel.Step2,
		Step3:            funnel.Step3,
		Reservations:     funnel.Reservations,
		ReservationValue: resValue.InexactFloat64(),
	}
	if spend.IsPositive() {
		conv.ROAS = resValue.Div(spend).InexactFloat64()
	}
	if funnel.Reservations > 0 {
		conv.CostPerReservation = spend.Div(decimal.NewFromFloat(funnel.Reservations)).InexactFloat64()
	}
	if clicks > 0 {
		conv.ReservationRate = funnel.Reservations / float64(clicks) * 100
	}
	return stats, conv
}
