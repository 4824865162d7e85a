package platform

import (
	"context"
	"fmt"

	"github.com/radiusdt/adreport/internal/models"
)

// googleActionTypes maps Google Ads conversion action names onto the funnel.
// Conversion action names are advertiser-defined; these are the names the
// booking integrations create.
var googleActionTypes = ActionTypeMap{
	Step1:            []string{"search", "step 1"},
	Step2:            []string{"view_item", "page_view", "step 2"},
	Step3:            []string{"begin_checkout", "step 3"},
	Reservations:     []string{"purchase", "reservation", "booking"},
	ReservationValue: []string{"purchase", "reservation", "booking"},
}

// GoogleAdapter reads campaign metrics and conversion actions from Google Ads.
// Conversions come from a separate call and are joined by campaign id.
type GoogleAdapter struct {
	client InsightsClient
}

// NewGoogleAdapter creates a Google Ads adapter.
func NewGoogleAdapter(client InsightsClient) *GoogleAdapter {
	return &GoogleAdapter{client: client}
}

func (a *GoogleAdapter) Platform() models.Platform { return models.PlatformGoogle }

func (a *GoogleAdapter) ActionTypeMap() ActionTypeMap { return googleActionTypes }

// FetchInsights returns campaign rows with conversion actions attached.
func (a *GoogleAdapter) FetchInsights(ctx context.Context, accountID string, r models.DateRange) ([]models.RawCampaign, error) {
	rows, err := a.client.FetchInsights(ctx, models.PlatformGoogle, accountID, r)
	if err != nil {
		return nil, fmt.Errorf("google campaign metrics: %w", err)
	}

	conversions, err := a.client.FetchConversionActions(ctx, models.PlatformGoogle, accountID, r)
	if err != nil {
		return nil, fmt.Errorf("google conversion actions: %w", err)
	}

	byCampaign := make(map[string][]ConversionAction, len(rows))
	for _, c := range conversions {
		byCampaign[c.CampaignID] = append(byCampaign[c.CampaignID], c)
	}

	for i := range rows {
		for _, c := range byCampaign[rows[i].ID] {
			rows[i].Actions = append(rows[i].Actions, models.ActionStat{ActionType: c.ActionType, Value: c.Conversions})
			rows[i].ActionValues = append(rows[i].ActionValues, models.ActionStat{ActionType: c.ActionType, Value: c.Value})
		}
	}

	return rows, nil
}
