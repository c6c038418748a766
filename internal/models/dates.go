package models

import (
	"fmt"
	"strings"
	"time"
)

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of whole calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	diff := DateOnly(a).Sub(DateOnly(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// FormatDate renders a nullable date, using "" for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

func datePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return ParseDate(*s)
}

// DateRange scopes matching and views. Either bound may be empty; bounds
// are inclusive calendar dates.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// IsZero reports whether the range is unbounded on both sides.
func (r DateRange) IsZero() bool {
	return strings.TrimSpace(r.From) == "" && strings.TrimSpace(r.To) == ""
}

// Bounds parses both bounds.
func (r DateRange) Bounds() (from, to *time.Time, err error) {
	if from, err = ParseDate(r.From); err != nil {
		return nil, nil, err
	}
	if to, err = ParseDate(r.To); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// Validate checks that both bounds parse and are ordered.
func (r DateRange) Validate() error {
	from, to, err := r.Bounds()
	if err != nil {
		return err
	}
	if from != nil && to != nil && from.After(*to) {
		return fmt.Errorf("date range start %s is after end %s", r.From, r.To)
	}
	return nil
}

// Contains reports whether date falls inside the range. An unbounded range
// contains everything, nil dates included; a bounded range never contains a
// nil date. Unparseable bounds are treated as absent.
func (r DateRange) Contains(date *time.Time) bool {
	if r.IsZero() {
		return true
	}
	if date == nil {
		return false
	}
	from, _ := ParseDate(r.From)
	to, _ := ParseDate(r.To)
	d := DateOnly(*date)
	if from != nil && d.Before(*from) {
		return false
	}
	if to != nil && d.After(*to) {
		return false
	}
	return true
}

func (r DateRange) String() string {
	if r.IsZero() {
		return "all dates"
	}
	from, to := r.From, r.To
	if from == "" {
		from = "…"
	}
	if to == "" {
		to = "…"
	}
	return from + " to " + to
}
