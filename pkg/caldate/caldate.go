// Package caldate handles whole-day calendar dates in the YYYY-MM-DD wire format.
//
// Dates carry no time zone. They are parsed and built in UTC so a date never
// shifts with the zone of the caller.
package caldate

import (
	"errors"
	"fmt"
	"time"
)

const (
	Layout = "2006-01-02"

	MinYear = 2000
	MaxYear = 2100
)

var (
	ErrInvalidDate  = errors.New("date must be a valid calendar date in YYYY-MM-DD format")
	ErrInvalidMonth = errors.New("month must be between 1 and 12")
	ErrInvalidYear  = fmt.Errorf("year must be between %d and %d", MinYear, MaxYear)
)

func Parse(s string) (time.Time, error) {
	if len(s) != len(Layout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Format returns the calendar date of t as observed in t's own location.
func Format(t time.Time) string {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(Layout)
}

func ValidateMonth(year, month int) error {
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	if year < MinYear || year > MaxYear {
		return ErrInvalidYear
	}
	return nil
}

func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthRange returns the first and last dates of the month and its day count.
func MonthRange(year int, month time.Month) (first, last string, days int) {
	days = DaysIn(year, month)
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start.Format(Layout), start.AddDate(0, 0, days-1).Format(Layout), days
}

// MonthDates lists every date of the month in ascending order.
func MonthDates(year int, month time.Month) []string {
	days := DaysIn(year, month)
	out := make([]string, 0, days)
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		out = append(out, start.AddDate(0, 0, i).Format(Layout))
	}
	return out
}

func Weekday(s string) (time.Weekday, error) {
	t, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return t.Weekday(), nil
}

// Before reports whether date a is strictly earlier than b. Both must already be valid.
func Before(a, b string) bool {
	return a < b
}

// SpanDays returns the number of days from "from" to "to", inclusive.
func SpanDays(from, to string) (int, error) {
	f, err := Parse(from)
	if err != nil {
		return 0, err
	}
	t, err := Parse(to)
	if err != nil {
		return 0, err
	}
	return int(t.Sub(f).Hours()/24) + 1, nil
}
