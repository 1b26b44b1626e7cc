package shared

import (
	"fmt"
	"time"
)

// DayFormat is the canonical layout for business days across the stores.
const DayFormat = "2006-01-02"

// ParseDay parses a YYYY-MM-DD business day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid day %q", ErrValidation, s)
	}
	return t, nil
}

// ParseDayRange parses an inclusive date range, swapping the bounds when
// callers hand them in reverse order.
func ParseDayRange(from, to string) (time.Time, time.Time, error) {
	f, err := ParseDay(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	t, err := ParseDay(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if t.Before(f) {
		f, t = t, f
	}
	return f, t, nil
}

// DaysBetween iterates the inclusive range day by day.
func DaysBetween(from, to time.Time) []string {
	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(DayFormat))
	}
	return out
}
