package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/platform"
)

func metaMap() platform.ActionTypeMap {
	return platform.NewMetaAdapter(nil).ActionTypeMap()
}

func googleMap() platform.ActionTypeMap {
	return platform.NewGoogleAdapter(nil).ActionTypeMap()
}

func TestNormalizeRecomputesRatios(t *testing.T) {
	raw := []models.RawCampaign{{
		ID:          "c1",
		Name:        "Summer",
		Spend:       50,
		Impressions: 2000,
		Clicks:      40,
		// Platform ratios based on "all clicks"; must be ignored.
		ReportedCTR: 3.5,
		ReportedCPC: 0.9,
	}}

	for name, actions := range map[string]platform.ActionTypeMap{"meta": metaMap(), "google": googleMap()} {
		t.Run(name, func(t *testing.T) {
			got := Normalize(raw, actions)
			require.Len(t, got, 1)
			assert.InDelta(t, 2.0, got[0].CTR, 1e-9)
			assert.InDelta(t, 1.25, got[0].CPC, 1e-9)
			assert.Equal(t, "Summer", got[0].Name)
		})
	}
}

func TestNormalizeZeroDenominators(t *testing.T) {
	got := Normalize([]models.RawCampaign{{
		ID:          "c1",
		Spend:       10,
		ReportedCTR: 12,
		ReportedCPC: 3,
	}}, metaMap())

	require.Len(t, got, 1)
	assert.Zero(t, got[0].CTR)
	assert.Zero(t, got[0].CPC)
}

func TestNormalizeMetaDuplicateActions(t *testing.T) {
	got := Normalize([]models.RawCampaign{{
		ID:          "c1",
		Impressions: 100,
		Clicks:      10,
		Actions: []models.ActionStat{
			{ActionType: "omni_purchase", Value: 2},
			{ActionType: "offsite_conversion.fb_pixel_purchase", Value: 2},
			{ActionType: "purchase", Value: 2},
			{ActionType: "offsite_conversion.fb_pixel_search", Value: 7},
			{ActionType: "search", Value: 7},
			{ActionType: "link_click", Value: 10},
		},
		ActionValues: []models.ActionStat{
			{ActionType: "omni_purchase", Value: 300},
			{ActionType: "purchase", Value: 300},
		},
	}}, metaMap())

	require.Len(t, got, 1)
	f := got[0].Funnel
	assert.Equal(t, 2.0, f.Reservations)
	assert.Equal(t, 300.0, f.ReservationValue)
	assert.Equal(t, 7.0, f.Step1)
	assert.Zero(t, f.Step2)
	assert.Zero(t, f.Step3)
}

func TestNormalizeGoogleConversionNames(t *testing.T) {
	got := Normalize([]models.RawCampaign{{
		ID: "g1",
		Actions: []models.ActionStat{
			{ActionType: "Booking Engine - Purchase", Value: 3},
			{ActionType: "Booking Engine - Begin_Checkout", Value: 5},
			{ActionType: "Newsletter signup", Value: 40},
		},
		ActionValues: []models.ActionStat{
			{ActionType: "Booking Engine - Purchase", Value: 450.5},
			{ActionType: "Booking Engine - Begin_Checkout", Value: 0},
		},
	}}, googleMap())

	require.Len(t, got, 1)
	f := got[0].Funnel
	assert.Equal(t, 3.0, f.Reservations, "matching is case-insensitive")
	assert.Equal(t, 450.5, f.ReservationValue)
	assert.Equal(t, 5.0, f.Step3)
	assert.Zero(t, f.Step1, "unmatched actions are ignored")
}

func TestMatchActionsPriority(t *testing.T) {
	stats := []models.ActionStat{
		{ActionType: "a_low", Value: 1},
		{ActionType: "b_high", Value: 4},
		{ActionType: "b_high_dup", Value: 6},
	}
	assert.Equal(t, 10.0, matchActions(stats, []string{"b_high", "low"}))
	assert.Equal(t, 1.0, matchActions(stats, []string{"missing", "LOW"}))
	assert.Zero(t, matchActions(stats, nil))
	assert.Zero(t, matchActions(nil, []string{"b_high"}))
}

func TestAggregate(t *testing.T) {
	campaigns := []models.CampaignMetrics{
		{ID: "a", Spend: 100.10, Impressions: 10000, Clicks: 100, Funnel: models.Funnel{Step1: 50, Reservations: 4, ReservationValue: 800}},
		{ID: "b", Spend: 49.90, Impressions: 5000, Clicks: 200, Funnel: models.Funnel{Step1: 10, Reservations: 2, ReservationValue: 100}},
	}

	stats, conv := Aggregate(campaigns)

	assert.Equal(t, 150.0, stats.TotalSpend)
	assert.Equal(t, int64(15000), stats.TotalImpressions)
	assert.Equal(t, int64(300), stats.TotalClicks)
	assert.Equal(t, 2, stats.CampaignCount)
	assert.InDelta(t, 2.0, stats.AverageCTR, 1e-9, "weighted by impressions, not a mean of campaign CTRs")
	assert.InDelta(t, 0.5, stats.AverageCPC, 1e-9)

	assert.Equal(t, 60.0, conv.Step1)
	assert.Equal(t, 6.0, conv.Reservations)
	assert.Equal(t, 900.0, conv.ReservationValue)
	assert.InDelta(t, 6.0, conv.ROAS, 1e-9)
	assert.InDelta(t, 25.0, conv.CostPerReservation, 1e-9)
	assert.InDelta(t, 2.0, conv.ReservationRate, 1e-9)
}

func TestAggregateEmpty(t *testing.T) {
	stats, conv := Aggregate(nil)
	assert.Equal(t, models.Stats{}, stats)
	assert.Equal(t, models.ConversionMetrics{}, conv)
}

func TestBuildSnapshotRecomputesStoredRatios(t *testing.T) {
	snap := BuildSnapshot([]models.CampaignMetrics{
		{ID: "a", Spend: 20, Impressions: 1000, Clicks: 10, CTR: 99, CPC: 99},
	})

	require.Len(t, snap.Campaigns, 1)
	assert.InDelta(t, 1.0, snap.Campaigns[0].CTR, 1e-9)
	assert.InDelta(t, 2.0, snap.Campaigns[0].CPC, 1e-9)
	assert.Equal(t, 20.0, snap.Stats.TotalSpend)
	assert.Equal(t, 1, snap.Stats.CampaignCount)
}
