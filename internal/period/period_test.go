package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/adreport/internal/models"
)

func rng(start, end time.Time) models.DateRange {
	return models.DateRange{Start: start, End: end}
}

func TestClassify(t *testing.T) {
	today := models.Date(2025, time.September, 15) // Monday

	tests := []struct {
		name      string
		r         models.DateRange
		kind      models.PeriodKind
		cacheable bool
		periodID  string
		tier      models.Tier
	}{
		{
			name:      "current month",
			r:         rng(models.Date(2025, 9, 1), models.Date(2025, 9, 30)),
			kind:      models.PeriodCurrentMonth,
			cacheable: true,
			periodID:  "2025-09",
			tier:      models.TierMonth,
		},
		{
			name:      "current iso week",
			r:         rng(models.Date(2025, 9, 15), models.Date(2025, 9, 21)),
			kind:      models.PeriodCurrentWeek,
			cacheable: true,
			periodID:  "2025-W38",
			tier:      models.TierWeek,
		},
		{
			name: "elapsed week two weeks prior",
			r:    rng(models.Date(2025, 9, 1), models.Date(2025, 9, 7)),
			kind: models.PeriodHistorical,
		},
		{
			name: "elapsed week just before the current one",
			r:    rng(models.Date(2025, 9, 8), models.Date(2025, 9, 14)),
			kind: models.PeriodHistorical,
		},
		{
			name: "elapsed seven days not aligned to a week",
			r:    rng(models.Date(2025, 9, 2), models.Date(2025, 9, 8)),
			kind: models.PeriodCustom,
		},
		{
			name: "previous month",
			r:    rng(models.Date(2025, 8, 1), models.Date(2025, 8, 31)),
			kind: models.PeriodHistorical,
		},
		{
			name: "arbitrary range before current month",
			r:    rng(models.Date(2025, 6, 3), models.Date(2025, 8, 17)),
			kind: models.PeriodHistorical,
		},
		{
			name: "partial current month",
			r:    rng(models.Date(2025, 9, 1), models.Date(2025, 9, 15)),
			kind: models.PeriodCustom,
		},
		{
			name: "multi month span into current month",
			r:    rng(models.Date(2025, 8, 1), models.Date(2025, 9, 30)),
			kind: models.PeriodCustom,
		},
		{
			name: "future inclusive range",
			r:    rng(models.Date(2025, 9, 10), models.Date(2025, 10, 10)),
			kind: models.PeriodCustom,
		},
		{
			name: "all time",
			r:    rng(models.Date(2022, 8, 15), models.Date(2025, 9, 15)),
			kind: models.PeriodAllTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.r, today)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.cacheable, c.Cacheable)
			assert.Equal(t, tt.periodID, c.PeriodID)
			assert.Equal(t, tt.tier, c.Tier)
		})
	}
}

// With today in the following month, an elapsed week is historical.
func TestClassify_ElapsedWeekInPreviousMonth(t *testing.T) {
	today := models.Date(2025, time.October, 15)
	c := Classify(rng(models.Date(2025, 9, 1), models.Date(2025, 9, 7)), today)
	assert.Equal(t, models.PeriodHistorical, c.Kind)
	assert.False(t, c.Cacheable)
	assert.Empty(t, c.PeriodID)
}

func TestClassify_IsDeterministic(t *testing.T) {
	today := models.Date(2026, time.January, 1)
	ranges := []models.DateRange{
		rng(models.Date(2025, 12, 29), models.Date(2026, 1, 4)),
		rng(models.Date(2026, 1, 1), models.Date(2026, 1, 31)),
		rng(models.Date(2025, 11, 1), models.Date(2025, 11, 30)),
		AllTimeRange(today),
	}
	for _, r := range ranges {
		assert.Equal(t, Classify(r, today), Classify(r, today))
	}
}

func TestClassify_IgnoresClockPartOfToday(t *testing.T) {
	r := rng(models.Date(2025, 9, 1), models.Date(2025, 9, 30))
	morning := time.Date(2025, 9, 15, 0, 0, 1, 0, time.UTC)
	night := time.Date(2025, 9, 15, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, Classify(r, morning), Classify(r, night))
}

func TestClassify_YearBoundaryWeek(t *testing.T) {
	// Monday 2025-12-29 .. Sunday 2026-01-04. Its Thursday is
	// 2026-01-01, so the week belongs to 2026.
	r := rng(models.Date(2025, 12, 29), models.Date(2026, 1, 4))

	for _, today := range []time.Time{
		models.Date(2025, 12, 29),
		models.Date(2025, 12, 31),
		models.Date(2026, 1, 1),
		models.Date(2026, 1, 4),
	} {
		c := Classify(r, today)
		assert.Equal(t, models.PeriodCurrentWeek, c.Kind, today.Format(models.DateLayout))
		assert.Equal(t, "2026-W01", c.PeriodID, today.Format(models.DateLayout))
	}
}

func TestISOWeekID(t *testing.T) {
	tests := []struct {
		day  time.Time
		want string
	}{
		{models.Date(2025, 9, 1), "2025-W36"},
		{models.Date(2025, 12, 28), "2025-W52"},
		{models.Date(2025, 12, 29), "2026-W01"},
		{models.Date(2026, 1, 4), "2026-W01"},
		{models.Date(2020, 12, 31), "2020-W53"},
		{models.Date(2021, 1, 3), "2020-W53"},
		{models.Date(2021, 1, 4), "2021-W01"},
		{models.Date(2027, 1, 1), "2026-W53"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ISOWeekID(tt.day), tt.day.Format(models.DateLayout))
	}
}

func TestWeekBounds(t *testing.T) {
	monday, sunday := WeekBounds(models.Date(2026, 1, 1)) // Thursday
	assert.Equal(t, models.Date(2025, 12, 29), monday)
	assert.Equal(t, models.Date(2026, 1, 4), sunday)

	monday, sunday = WeekBounds(models.Date(2025, 9, 21)) // Sunday
	assert.Equal(t, models.Date(2025, 9, 15), monday)
	assert.Equal(t, models.Date(2025, 9, 21), sunday)
}

func TestMonthBounds(t *testing.T) {
	first, last := MonthBounds(models.Date(2024, 2, 10))
	assert.Equal(t, models.Date(2024, 2, 1), first)
	assert.Equal(t, models.Date(2024, 2, 29), last)
}

func TestAllTimeRange(t *testing.T) {
	r := AllTimeRange(time.Date(2025, 9, 15, 18, 30, 0, 0, time.UTC))
	assert.Equal(t, models.Date(2022, 8, 15), r.Start)
	assert.Equal(t, models.Date(2025, 9, 15), r.End)
}

func TestHistoricalPeriod(t *testing.T) {
	pt, start, ok := HistoricalPeriod(rng(models.Date(2025, 8, 1), models.Date(2025, 8, 31)))
	require.True(t, ok)
	assert.Equal(t, models.PeriodTypeMonthly, pt)
	assert.Equal(t, models.Date(2025, 8, 1), start)

	pt, start, ok = HistoricalPeriod(rng(models.Date(2025, 9, 1), models.Date(2025, 9, 7)))
	require.True(t, ok)
	assert.Equal(t, models.PeriodTypeWeekly, pt)
	assert.Equal(t, models.Date(2025, 9, 1), start)

	_, _, ok = HistoricalPeriod(rng(models.Date(2025, 9, 2), models.Date(2025, 9, 8)))
	assert.False(t, ok)
}

func TestPreset(t *testing.T) {
	today := models.Date(2025, time.September, 17) // Wednesday

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{PresetToday, today, today},
		{PresetYesterday, models.Date(2025, 9, 16), models.Date(2025, 9, 16)},
		{PresetCurrentWeek, models.Date(2025, 9, 15), models.Date(2025, 9, 21)},
		{PresetCurrentMonth, models.Date(2025, 9, 1), models.Date(2025, 9, 30)},
		{PresetLastWeek, models.Date(2025, 9, 8), models.Date(2025, 9, 14)},
		{PresetLastMonth, models.Date(2025, 8, 1), models.Date(2025, 8, 31)},
		{PresetAllTime, models.Date(2022, 8, 17), today},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Preset(tt.name, today)
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
		})
	}

	_, err := Preset("fortnight", today)
	assert.Error(t, err)
}

func TestPreset_RoundTripsThroughClassify(t *testing.T) {
	today := models.Date(2025, time.September, 17)

	month, err := Preset(PresetCurrentMonth, today)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodCurrentMonth, Classify(month, today).Kind)

	week, err := Preset(PresetCurrentWeek, today)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodCurrentWeek, Classify(week, today).Kind)

	all, err := Preset(PresetAllTime, today)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodAllTime, Classify(all, today).Kind)

	last, err := Preset(PresetLastMonth, today)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodHistorical, Classify(last, today).Kind)
}
