package sites

import (
	"fmt"
	"time"
)

// Site is one restaurant location known to the POS.
type Site struct {
	ID          string `json:"site_id"`
	Name        string `json:"site_name"`
	DisplayName string `json:"display_name,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
}

// Label is the name shown on reports: the override when set, else the POS name.
func (s Site) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// OpeningHours is a daily open window on wall-clock minutes. Close before
// open means the window wraps past midnight.
type OpeningHours struct {
	Open  ClockTime
	Close ClockTime
}

// Contains reports whether t falls inside the window. On a wrapping window
// such as 15:30 to 01:00, both late evening and early morning are open.
func (h OpeningHours) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	open, close := h.Open.Minutes(), h.Close.Minutes()
	if open == close {
		return true
	}
	if open < close {
		return m >= open && m < close
	}
	return m >= open || m < close
}

// ClockTime is a wall-clock HH:MM moment.
type ClockTime struct {
	Hour   int
	Minute int
}

// Minutes converts to minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// String formats back to HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClockTime parses an HH:MM string.
func ParseClockTime(s string) (ClockTime, error) {
	var c ClockTime
	if _, err := fmt.Sscanf(s, "%d:%d", &c.Hour, &c.Minute); err != nil {
		return ClockTime{}, fmt.Errorf("sites: parse clock time %q: %w", s, err)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return ClockTime{}, fmt.Errorf("sites: clock time %q out of range", s)
	}
	return c, nil
}
