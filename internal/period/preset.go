package period

import (
	"fmt"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

// Preset names accepted by Preset.
const (
	PresetToday        = "today"
	PresetYesterday    = "yesterday"
	PresetCurrentWeek  = "current-week"
	PresetCurrentMonth = "current-month"
	PresetLastWeek     = "last-week"
	PresetLastMonth    = "last-month"
	PresetAllTime      = "all-time"
)

// Preset resolves a UI period preset to a date range relative to today.
func Preset(name string, today time.Time) (models.DateRange, error) {
	today = models.DateOf(today)

	switch name {
	case PresetToday:
		return models.DateRange{Start: today, End: today}, nil
	case PresetYesterday:
		y := today.AddDate(0, 0, -1)
		return models.DateRange{Start: y, End: y}, nil
	case PresetCurrentWeek:
		start, end := WeekBounds(today)
		return models.DateRange{Start: start, End: end}, nil
	case PresetCurrentMonth:
		start, end := MonthBounds(today)
		return models.DateRange{Start: start, End: end}, nil
	case PresetLastWeek:
		start, end := WeekBounds(today.AddDate(0, 0, -7))
		return models.DateRange{Start: start, End: end}, nil
	case PresetLastMonth:
		thisMonth, _ := MonthBounds(today)
		start, end := MonthBounds(thisMonth.AddDate(0, 0, -1))
		return models.DateRange{Start: start, End: end}, nil
	case PresetAllTime:
		return AllTimeRange(today), nil
	default:
		return models.DateRange{}, fmt.Errorf("unknown period preset %q", name)
	}
}
