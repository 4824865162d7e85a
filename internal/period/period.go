// Package period classifies requested date ranges against "today".
//
// Everything here is pure: the caller passes today explicitly so month, week
// and year boundaries can be exercised deterministically.
package period

import (
	"fmt"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

// AllTimeMonths is the platform historical-data retention limit.
const AllTimeMonths = 37

// Classification is the derived, non-persisted view of a date range.
type Classification struct {
	Kind      models.PeriodKind
	Cacheable bool
	PeriodID  string      // set only when Cacheable
	Tier      models.Tier // set only when Cacheable
}

// Classify determines the period kind of r relative to today.
func Classify(r models.DateRange, today time.Time) Classification {
	today = models.DateOf(today)
	r = models.NewDateRange(r.Start, r.End)

	monthStart, monthEnd := MonthBounds(today)
	if r.Start.Equal(monthStart) && r.End.Equal(monthEnd) {
		return Classification{
			Kind:      models.PeriodCurrentMonth,
			Cacheable: true,
			PeriodID:  MonthID(today),
			Tier:      models.TierMonth,
		}
	}

	weekStart, weekEnd := WeekBounds(today)
	if r.Start.Equal(weekStart) && r.End.Equal(weekEnd) {
		return Classification{
			Kind:      models.PeriodCurrentWeek,
			Cacheable: true,
			PeriodID:  ISOWeekID(today),
			Tier:      models.TierWeek,
		}
	}

	if r.End.Before(monthStart) {
		return Classification{Kind: models.PeriodHistorical}
	}

	// A whole ISO week that has fully elapsed has a backfilled weekly summary
	// even when it lies inside the current month.
	if pt, _, ok := HistoricalPeriod(r); ok && pt == models.PeriodTypeWeekly && r.End.Before(weekStart) {
		return Classification{Kind: models.PeriodHistorical}
	}

	if r.Equal(AllTimeRange(today)) {
		return Classification{Kind: models.PeriodAllTime}
	}

	return Classification{Kind: models.PeriodCustom}
}

// MonthBounds returns the first and last day of the month containing day.
func MonthBounds(day time.Time) (time.Time, time.Time) {
	y, m, _ := day.Date()
	first := models.Date(y, m, 1)
	return first, first.AddDate(0, 1, -1)
}

// WeekBounds returns the Monday and Sunday of the ISO week containing day.
func WeekBounds(day time.Time) (time.Time, time.Time) {
	day = models.DateOf(day)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	monday := day.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// MonthID formats the canonical month id, e.g. "2025-09".
func MonthID(day time.Time) string {
	return day.Format("2006-01")
}

// ISOWeekID formats the canonical ISO week id, e.g. "2025-W36". The year is
// the one containing the week's Thursday.
func ISOWeekID(day time.Time) string {
	y, w := day.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

// AllTimeRange is [today - 37 months, today].
func AllTimeRange(today time.Time) models.DateRange {
	today = models.DateOf(today)
	return models.DateRange{Start: today.AddDate(0, -AllTimeMonths, 0), End: today}
}

// HistoricalPeriod reports whether r is exactly one calendar month or one ISO
// week, returning the summary granularity and the period start.
func HistoricalPeriod(r models.DateRange) (models.PeriodType, time.Time, bool) {
	r = models.NewDateRange(r.Start, r.End)

	monthStart, monthEnd := MonthBounds(r.Start)
	if r.Start.Equal(monthStart) && r.End.Equal(monthEnd) {
		return models.PeriodTypeMonthly, monthStart, true
	}

	weekStart, weekEnd := WeekBounds(r.Start)
	if r.Start.Equal(weekStart) && r.End.Equal(weekEnd) {
		return models.PeriodTypeWeekly, weekStart, true
	}

	return "", time.Time{}, false
}
