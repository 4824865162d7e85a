package platform

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
)

// BreakerAdapter wraps an Adapter with a circuit breaker so a failing
// platform is not hammered by every report view.
type BreakerAdapter struct {
	Adapter
	cb      *gobreaker.CircuitBreaker[[]models.RawCampaign]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewBreakerAdapter creates a breaker around next.
// The circuit opens at >= 60% failures over at least 10 requests, stays open
// for openTimeout and then lets 3 probe requests through.
func NewBreakerAdapter(next Adapter, openTimeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *BreakerAdapter {
	name := string(next.Platform()) + "-insights"
	m.SetBreakerState(name, stateToFloat(gobreaker.StateClosed))

	b := &BreakerAdapter{Adapter: next, logger: logger, metrics: m}
	b.cb = gobreaker.NewCircuitBreaker[[]models.RawCampaign](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Account-level errors say nothing about platform health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var pe *Error
			if errors.As(err, &pe) {
				return !pe.Transient() && pe.Code != CodeUnknown
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, stateToFloat(to))
		},
	})
	return b
}

// FetchInsights runs the wrapped call through the breaker.
func (b *BreakerAdapter) FetchInsights(ctx context.Context, accountID string, r models.DateRange) ([]models.RawCampaign, error) {
	rows, err := b.cb.Execute(func() ([]models.RawCampaign, error) {
		return b.Adapter.FetchInsights(ctx, accountID, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &Error{Code: CodeCircuitOpen, Message: string(b.Platform()) + " insights temporarily disabled after repeated failures"}
	}
	return rows, err
}

// State returns the current breaker state.
func (b *BreakerAdapter) State() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
