package reporting

import (
	"fmt"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

// Error codes reported in DebugInfo.ErrorCode besides upstream codes.
const (
	CodeTimeout          = "timeout"
	CodeCanceled         = "canceled"
	CodeInternal         = "internal"
	CodeAccountNotLinked = "account_not_linked"
	CodeStoreUnavailable = "store_unavailable"
)

// ReasonNoHistoricalData is the Debug.Reason of a historical request with no rows.
const ReasonNoHistoricalData = "no_historical_data"

// ValidationError means the request was malformed. It is returned before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TimeoutError means the upstream call exceeded its wall-clock budget.
type TimeoutError struct {
	Platform models.Platform
	Budget   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s insights fetch exceeded %s", e.Platform, e.Budget)
}

// UpstreamError is an explicit error returned by a platform. Message is kept
// verbatim.
type UpstreamError struct {
	Platform models.Platform
	Code     string
	Message  string
}

func (e *UpstreamError) Error() string {
	return e.Message
}
