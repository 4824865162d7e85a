package platform

import (
	"context"
	"fmt"

	"github.com/radiusdt/adreport/internal/models"
)

// Adapter is the single capability each ad platform implements.
type Adapter interface {
	Platform() models.Platform
	FetchInsights(ctx context.Context, accountID string, r models.DateRange) ([]models.RawCampaign, error)
	ActionTypeMap() ActionTypeMap
}

// ActionTypeMap lists, per funnel step, action-type substrings in priority
// order. The first pattern that matches at least one action decides the step;
// every action matching that pattern is summed. Anything unmatched is ignored.
type ActionTypeMap struct {
	Step1            []string
	Step2            []string
	Step3            []string
	Reservations     []string
	ReservationValue []string // matched against RawCampaign.ActionValues
}

// ConversionAction is one conversion action row for a campaign.
type ConversionAction struct {
	CampaignID  string  `json:"campaign_id"`
	ActionType  string  `json:"action_type"`
	Conversions float64 `json:"conversions"`
	Value       float64 `json:"value"`
}

// InsightsClient is the transport behind the adapters (platform SDK or an
// insights gateway).
type InsightsClient interface {
	FetchInsights(ctx context.Context, p models.Platform, accountID string, r models.DateRange) ([]models.RawCampaign, error)
	FetchConversionActions(ctx context.Context, p models.Platform, accountID string, r models.DateRange) ([]ConversionAction, error)
}

// Error codes reported by platforms and by this package.
const (
	CodeRateLimited    = "rate_limited"
	CodeAuth           = "auth_error"
	CodeInvalidAccount = "invalid_account"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal"
	CodeCircuitOpen    = "circuit_open"
	CodeUnknown        = "unknown"
)

// Error is an explicit error returned by a platform.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("platform error %s: %s", e.Code, e.Message)
}

// Transient reports whether retrying the same call may succeed.
func (e *Error) Transient() bool {
	return e.Code == CodeUnavailable || e.Code == CodeInternal
}

// NewAdapters builds one adapter per supported platform on top of client.
func NewAdapters(client InsightsClient) []Adapter {
	return []Adapter{
		NewMetaAdapter(client),
		NewGoogleAdapter(client),
	}
}
