package reporting

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/radiusdt/adreport/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidateRequest rejects malformed requests. It performs no I/O.
func ValidateRequest(req models.FetchRequest, today time.Time) error {
	if err := validate.Struct(req); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return &ValidationError{Field: errs[0].Field(), Message: validationMessage(errs[0])}
		}
		return &ValidationError{Field: "request", Message: err.Error()}
	}

	r := req.DateRange
	switch {
	case r.Start.IsZero() || r.End.IsZero():
		return &ValidationError{Field: "date_range", Message: "start and end are required"}
	case models.DateOf(r.Start).After(models.DateOf(r.End)):
		return &ValidationError{Field: "date_range", Message: fmt.Sprintf("start %s is after end %s",
			r.Start.Format(models.DateLayout), r.End.Format(models.DateLayout))}
	case models.DateOf(r.Start).After(models.DateOf(today)):
		return &ValidationError{Field: "date_range", Message: "range starts in the future"}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return "is invalid"
}

// cacheState is what a resolution observed in the cache.
type cacheState int

const (
	cacheNotRead cacheState = iota
	cacheMiss
	cacheFresh
	cacheStale
)

// expectedSource is the tier the rules prescribe for a request, given what
// the cache held when it was read.
func expectedSource(kind models.PeriodKind, force bool, state cacheState) models.Source {
	switch {
	case kind == models.PeriodHistorical:
		return models.SourceDatabase
	case !kind.IsCurrent():
		return models.SourceLiveAPI
	case force:
		return models.SourceLiveAPI
	case state == cacheFresh:
		return models.SourceCacheFresh
	case state == cacheStale:
		return models.SourceCacheStale
	default:
		return models.SourceLiveAPI
	}
}
