package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/models"
)

// Endpoint is the insights gateway for one platform.
type Endpoint struct {
	BaseURL     string
	AccessToken string
}

// HTTPInsightsClient implements InsightsClient against per-platform insights
// gateways speaking a small JSON protocol.
type HTTPInsightsClient struct {
	endpoints  map[models.Platform]Endpoint
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPInsightsClient creates a new gateway client.
func NewHTTPInsightsClient(endpoints map[models.Platform]Endpoint, timeout time.Duration, logger *zap.Logger) *HTTPInsightsClient {
	return &HTTPInsightsClient{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type insightsResponse struct {
	Data []models.RawCampaign `json:"data"`
}

type conversionActionsResponse struct {
	Data []ConversionAction `json:"data"`
}

type errorResponse struct {
	Error *Error `json:"error"`
}

// FetchInsights fetches campaign rows for an account and date range.
func (c *HTTPInsightsClient) FetchInsights(ctx context.Context, p models.Platform, accountID string, r models.DateRange) ([]models.RawCampaign, error) {
	var resp insightsResponse
	if err := c.get(ctx, p, "/v1/insights", accountID, r, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FetchConversionActions fetches per-campaign conversion action rows.
func (c *HTTPInsightsClient) FetchConversionActions(ctx context.Context, p models.Platform, accountID string, r models.DateRange) ([]ConversionAction, error) {
	var resp conversionActionsResponse
	if err := c.get(ctx, p, "/v1/conversion-actions", accountID, r, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *HTTPInsightsClient) get(ctx context.Context, p models.Platform, path, accountID string, r models.DateRange, out any) error {
	ep, ok := c.endpoints[p]
	if !ok || ep.BaseURL == "" {
		return &Error{Code: CodeUnavailable, Message: fmt.Sprintf("no insights endpoint configured for %s", p)}
	}

	q := url.Values{}
	q.Set("account_id", accountID)
	q.Set("since", r.Start.Format(models.DateLayout))
	q.Set("until", r.End.Format(models.DateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ep.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+ep.AccessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("insights gateway call",
		zap.String("platform", string(p)),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(status int, body []byte) *Error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != nil && er.Error.Code != "" {
		er.Error.StatusCode = status
		return er.Error
	}

	e := &Error{StatusCode: status, Message: http.StatusText(status)}
	switch {
	case status == http.StatusTooManyRequests:
		e.Code = CodeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = CodeAuth
	case status == http.StatusNotFound:
		e.Code = CodeInvalidAccount
	case status >= 500:
		e.Code = CodeUnavailable
	default:
		e.Code = CodeUnknown
	}
	return e
}
