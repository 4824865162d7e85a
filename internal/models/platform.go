package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DateLayout is the calendar-date format used on the wire and in period ids.
const DateLayout = "2006-01-02"

// Platform identifies an external ad platform.
type Platform string

const (
	PlatformMeta   Platform = "meta"
	PlatformGoogle Platform = "google"
)

// AllPlatforms returns the supported platforms in display order.
func AllPlatforms() []Platform {
	return []Platform{PlatformMeta, PlatformGoogle}
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformMeta || p == PlatformGoogle
}

// ParsePlatform parses a platform name case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// ===========================================
// CALENDAR DATES
// ===========================================

// Date returns the calendar date y-m-d as midnight UTC.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the clock part of t, keeping the calendar date t has in its
// own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a range from two instants, keeping only their dates.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: DateOf(start), End: DateOf(end)}
}

// ParseDateRange parses a pair of YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{Start: s, End: e}, nil
}

// Equal compares calendar dates only.
func (r DateRange) Equal(o DateRange) bool {
	return DateOf(r.Start).Equal(DateOf(o.Start)) && DateOf(r.End).Equal(DateOf(o.End))
}

// Days returns the number of calendar days covered, 0 for an inverted range.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(DateOf(r.End).Sub(DateOf(r.Start)).Hours()/24) + 1
}

// CapEnd returns r with End moved back to limit when it lies after limit.
func (r DateRange) CapEnd(limit time.Time) (DateRange, bool) {
	if r.End.After(limit) {
		return DateRange{Start: r.Start, End: DateOf(limit)}, true
	}
	return r, false
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

type dateRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{
		Start: r.Start.Format(DateLayout),
		End:   r.End.Format(DateLayout),
	})
}

func (r *DateRange) UnmarshalJSON(b []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseDateRange(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
