package entities

import (
	"fmt"
	"time"
)

// PeriodLayout is the calendar-month bucket format, e.g. "2024-05"
const PeriodLayout = "2006-01"

// PeriodOf returns the settlement period a timestamp falls into in the given location
func PeriodOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(PeriodLayout)
}

// ParsePeriod validates a period string and returns the first instant of the period in loc
func ParsePeriod(period string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(PeriodLayout, period, loc)
	if err != nil || start.Format(PeriodLayout) != period {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return start, nil
}

// PeriodBounds returns the half-open window [start, end) covered by a period
func PeriodBounds(period string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParsePeriod(period, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}

// PreviousPeriod returns the most recently elapsed period relative to now
func PreviousPeriod(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	firstOfMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return firstOfMonth.AddDate(0, 0, -1).Format(PeriodLayout)
}
