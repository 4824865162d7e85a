package reporting

import (
	"strings"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/platform"
)

// Normalize maps raw platform rows onto the canonical campaign shape.
// CTR and CPC are always recomputed from raw counts.
func Normalize(raw []models.RawCampaign, actions platform.ActionTypeMap) []models.CampaignMetrics {
	out := make([]models.CampaignMetrics, 0, len(raw))
	for _, r := range raw {
		c := models.CampaignMetrics{
			ID:          r.ID,
			Name:        r.Name,
			Spend:       r.Spend,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Funnel: models.Funnel{
				Step1:            matchActions(r.Actions, actions.Step1),
				Step2:            matchActions(r.Actions, actions.Step2),
				Step3:            matchActions(r.Actions, actions.Step3),
				Reservations:     matchActions(r.Actions, actions.Reservations),
				ReservationValue: matchActions(r.ActionValues, actions.ReservationValue),
			},
		}
		deriveRatios(&c)
		out = append(out, c)
	}
	return out
}

// deriveRatios sets CTR (%) and CPC from counts. Both are 0 when the
// denominator is 0.
func deriveRatios(c *models.CampaignMetrics) {
	c.CTR = 0
	c.CPC = 0
	if c.Impressions > 0 {
		c.CTR = float64(c.Clicks) / float64(c.Impressions) * 100
	}
	if c.Clicks > 0 {
		c.CPC = c.Spend / float64(c.Clicks)
	}
}

// matchActions sums the actions matching the first pattern that matches
// anything. Matching is a case-insensitive substring test.
func matchActions(stats []models.ActionStat, patterns []string) float64 {
	for _, p := range patterns {
		p = strings.ToLower(p)
		var (
			sum     float64
			matched bool
		)
		for _, s := range stats {
			if strings.Contains(strings.ToLower(s.ActionType), p) {
				sum += s.Value
				matched = true
			}
		}
		if matched {
			return sum
		}
	}
	return 0
}
