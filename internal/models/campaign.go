package models

// ===========================================
// RAW PLATFORM DATA
// ===========================================

// ActionStat is one entry of a platform's action/event list.
type ActionStat struct {
	ActionType string  `json:"action_type"`
	Value      float64 `json:"value"`
}

// RawCampaign is a campaign row as returned by a platform adapter.
type RawCampaign struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`

	// Ratios as displayed by the platform. Never copied into CampaignMetrics.
	ReportedCTR float64 `json:"reported_ctr,omitempty"`
	ReportedCPC float64 `json:"reported_cpc,omitempty"`

	Actions      []ActionStat `json:"actions,omitempty"`       // counts per action type
	ActionValues []ActionStat `json:"action_values,omitempty"` // monetary value per action type
}

// ===========================================
// CANONICAL METRICS
// ===========================================

// Funnel holds booking funnel steps extracted from platform actions.
type Funnel struct {
	Step1            float64 `json:"step1"` // search
	Step2            float64 `json:"step2"` // view content
	Step3            float64 `json:"step3"` // checkout initiated
	Reservations     float64 `json:"reservations"`
	ReservationValue float64 `json:"reservation_value"`
}

// Add returns the element-wise sum of f and o.
func (f Funnel) Add(o Funnel) Funnel {
	return Funnel{
		Step1:            f.Step1 + o.Step1,
		Step2:            f.Step2 + o.Step2,
		Step3:            f.Step3 + o.Step3,
		Reservations:     f.Reservations + o.Reservations,
		ReservationValue: f.ReservationValue + o.ReservationValue,
	}
}

// CampaignMetrics is the platform-independent shape of one campaign.
type CampaignMetrics struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"` // %
	CPC         float64 `json:"cpc"`
	Funnel      Funnel  `json:"funnel"`
}

// Stats are totals derived from a campaign list.
type Stats struct {
	TotalSpend       float64 `json:"total_spend"`
	TotalImpressions int64   `json:"total_impressions"`
	TotalClicks      int64   `json:"total_clicks"`
	AverageCTR       float64 `json:"average_ctr"` // weighted by impressions
	AverageCPC       float64 `json:"average_cpc"` // weighted by clicks
	CampaignCount    int     `json:"campaign_count"`
}

// ConversionMetrics are funnel totals derived from a campaign list.
type ConversionMetrics struct {
	Step1              float64 `json:"step1"`
	Step2              float64 `json:"step2"`
	Step3              float64 `json:"step3"`
	Reservations       float64 `json:"reservations"`
	ReservationValue   float64 `json:"reservation_value"`
	ROAS               float64 `json:"roas"`
	CostPerReservation float64 `json:"cost_per_reservation"`
	ReservationRate    float64 `json:"reservation_rate"` // reservations per 100 clicks
}

// Snapshot is a campaign list together with the totals computed from it.
// A snapshot is always built in one step so totals and line items agree.
type Snapshot struct {
	Stats       Stats             `json:"stats"`
	Conversions ConversionMetrics `json:"conversion_metrics"`
	Campaigns   []CampaignMetrics `json:"campaigns"`
}
