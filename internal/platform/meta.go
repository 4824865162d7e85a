package platform

import (
	"context"
	"fmt"

	"github.com/radiusdt/adreport/internal/models"
)

// metaActionTypes maps Meta action types onto the booking funnel. Meta reports
// the same purchase under several action types (omni_, offsite pixel, plain),
// so the most specific pattern goes first.
var metaActionTypes = ActionTypeMap{
	Step1: []string{
		"omni_search",
		"offsite_conversion.fb_pixel_search",
		"search",
	},
	Step2: []string{
		"omni_view_content",
		"offsite_conversion.fb_pixel_view_content",
		"view_content",
	},
	Step3: []string{
		"omni_initiated_checkout",
		"offsite_conversion.fb_pixel_initiate_checkout",
		"initiate_checkout",
		"initiated_checkout",
	},
	Reservations: []string{
		"omni_purchase",
		"offsite_conversion.fb_pixel_purchase",
		"purchase",
	},
	ReservationValue: []string{
		"omni_purchase",
		"offsite_conversion.fb_pixel_purchase",
		"purchase",
	},
}

// MetaAdapter reads campaign insights from Meta Ads. Actions arrive inline
// with each campaign row.
type MetaAdapter struct {
	client InsightsClient
}

// NewMetaAdapter creates a Meta adapter.
func NewMetaAdapter(client InsightsClient) *MetaAdapter {
	return &MetaAdapter{client: client}
}

func (a *MetaAdapter) Platform() models.Platform { return models.PlatformMeta }

func (a *MetaAdapter) ActionTypeMap() ActionTypeMap { return metaActionTypes }

// FetchInsights returns campaign rows with their inline action lists.
func (a *MetaAdapter) FetchInsights(ctx context.Context, accountID string, r models.DateRange) ([]models.RawCampaign, error) {
	rows, err := a.client.FetchInsights(ctx, models.PlatformMeta, accountID, r)
	if err != nil {
		return nil, fmt.Errorf("meta insights: %w", err)
	}
	return rows, nil
}
