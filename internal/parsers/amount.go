package parsers

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount extracts a non-negative magnitude from a bank-formatted
// amount. Everything except digits and separators is stripped, so signs,
// currency symbols and parentheses do not affect the result.
//
// Separator rules: when both '.' and ',' appear the right-most one is the
// decimal separator; a lone ',' followed by exactly two digits is decimal;
// any other ',' is a thousands separator; several '.' without a ',' are
// thousands separators.
func ParseAmount(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || strings.Trim(s, ".,") == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", raw)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount.Abs(), nil
}
