package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
)

var testRange = models.DateRange{
	Start: models.Date(2025, time.September, 1),
	End:   models.Date(2025, time.September, 30),
}

// stubClient is an in-process InsightsClient.
type stubClient struct {
	mu          sync.Mutex
	insights    []models.RawCampaign
	conversions []ConversionAction
	err         error
	calls       int
}

func (s *stubClient) FetchInsights(_ context.Context, _ models.Platform, _ string, _ models.DateRange) ([]models.RawCampaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.RawCampaign(nil), s.insights...), nil
}

func (s *stubClient) FetchConversionActions(_ context.Context, _ models.Platform, _ string, _ models.DateRange) ([]ConversionAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.conversions, nil
}

func TestNewAdapters(t *testing.T) {
	adapters := NewAdapters(&stubClient{})
	require.Len(t, adapters, 2)
	assert.Equal(t, models.PlatformMeta, adapters[0].Platform())
	assert.Equal(t, models.PlatformGoogle, adapters[1].Platform())
}

func TestGoogleAdapterJoinsConversions(t *testing.T) {
	client := &stubClient{
		insights: []models.RawCampaign{
			{ID: "1", Name: "Brand", Spend: 10},
			{ID: "2", Name: "Generic", Spend: 20},
		},
		conversions: []ConversionAction{
			{CampaignID: "1", ActionType: "Purchase", Conversions: 2, Value: 200},
			{CampaignID: "1", ActionType: "begin_checkout", Conversions: 5},
			{CampaignID: "3", ActionType: "Purchase", Conversions: 9, Value: 900},
		},
	}

	rows, err := NewGoogleAdapter(client).FetchInsights(context.Background(), "123", testRange)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Len(t, rows[0].Actions, 2)
	assert.Equal(t, models.ActionStat{ActionType: "Purchase", Value: 2}, rows[0].Actions[0])
	assert.Equal(t, models.ActionStat{ActionType: "Purchase", Value: 200}, rows[0].ActionValues[0])
	assert.Empty(t, rows[1].Actions, "conversions of unknown campaigns are dropped")
}

func TestMetaAdapterWrapsErrors(t *testing.T) {
	client := &stubClient{err: &Error{Code: CodeAuth, Message: "Error validating access token"}}

	_, err := NewMetaAdapter(client).FetchInsights(context.Background(), "act_1", testRange)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeAuth, pe.Code)
	assert.False(t, pe.Transient())
}

func TestHTTPInsightsClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "act_1", q.Get("account_id"))
		assert.Equal(t, "2025-09-01", q.Get("since"))
		assert.Equal(t, "2025-09-30", q.Get("until"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/meta/v1/insights":
			w.Write([]byte(`{"data":[{"id":"c1","name":"Autumn","spend":12.5,"impressions":1000,"clicks":25,
				"reported_ctr":9.9,"actions":[{"action_type":"omni_purchase","value":2}]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewHTTPInsightsClient(map[models.Platform]Endpoint{
		models.PlatformMeta: {BaseURL: srv.URL + "/meta", AccessToken: "secret"},
	}, time.Second, zap.NewNop())

	rows, err := client.FetchInsights(context.Background(), models.PlatformMeta, "act_1", testRange)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c1", rows[0].ID)
	assert.Equal(t, int64(25), rows[0].Clicks)
	assert.Equal(t, 9.9, rows[0].ReportedCTR)
	require.Len(t, rows[0].Actions, 1)
	assert.Equal(t, "omni_purchase", rows[0].Actions[0].ActionType)
}

func TestHTTPInsightsClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{"explicit error body", http.StatusBadRequest, `{"error":{"code":"rate_limited","message":"(#17) User request limit reached"}}`, CodeRateLimited, "(#17) User request limit reached"},
		{"429", http.StatusTooManyRequests, ``, CodeRateLimited, "Too Many Requests"},
		{"401", http.StatusUnauthorized, `nope`, CodeAuth, "Unauthorized"},
		{"404", http.StatusNotFound, ``, CodeInvalidAccount, "Not Found"},
		{"503", http.StatusServiceUnavailable, `<html>`, CodeUnavailable, "Service Unavailable"},
		{"418", http.StatusTeapot, ``, CodeUnknown, "I'm a teapot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewHTTPInsightsClient(map[models.Platform]Endpoint{
				models.PlatformGoogle: {BaseURL: srv.URL},
			}, time.Second, zap.NewNop())

			_, err := client.FetchConversionActions(context.Background(), models.PlatformGoogle, "1", testRange)
			var pe *Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.message, pe.Message)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestHTTPInsightsClientMissingEndpoint(t *testing.T) {
	client := NewHTTPInsightsClient(nil, time.Second, zap.NewNop())

	_, err := client.FetchInsights(context.Background(), models.PlatformMeta, "act_1", testRange)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeUnavailable, pe.Code)
}

func TestBreakerAdapterOpensOnTransientFailures(t *testing.T) {
	client := &stubClient{err: &Error{Code: CodeUnavailable, Message: "down"}}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	b := NewBreakerAdapter(NewMetaAdapter(client), time.Minute, zap.NewNop(), m)

	for i := 0; i < 10; i++ {
		_, err := b.FetchInsights(context.Background(), "act_1", testRange)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("meta-insights")))

	_, err := b.FetchInsights(context.Background(), "act_1", testRange)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeCircuitOpen, pe.Code)
	assert.Equal(t, 10, client.calls, "open breaker must not reach the platform")
}

func TestBreakerAdapterIgnoresAccountErrors(t *testing.T) {
	client := &stubClient{err: &Error{Code: CodeInvalidAccount, Message: "no such account"}}
	b := NewBreakerAdapter(NewGoogleAdapter(client), time.Minute, zap.NewNop(), nil)

	for i := 0; i < 20; i++ {
		_, err := b.FetchInsights(context.Background(), "1", testRange)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, models.PlatformGoogle, b.Platform())
	assert.Equal(t, googleActionTypes, b.ActionTypeMap())
}
