package parsers

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/models"
)

// Unambiguous layouts tried before the day-first fallback.
var nativeDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

var dayFirstPattern = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2}|\d{4})(?:[ T].*)?$`)

// ParseDate recognizes a bank date and returns it as UTC midnight of that
// calendar day. Unrecognized input yields nil; callers keep the row.
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	for _, layout := range nativeDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := models.DateOnly(t)
			return &d
		}
	}

	m := dayFirstPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// 31/02 and friends roll over; reject instead.
		return nil
	}
	return &t
}
