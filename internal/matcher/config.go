// Package matcher provides the auto-matching engine and the manual match
// operations for bank reconciliation.
//
// Matching is rule-based and deterministic. Each flow has its own rule:
//   - Income: the normalized bank reference (or description) must equal the
//     normalized internal reference, and the amounts must agree within
//     epsilon. Date proximity only breaks ties.
//   - Expense: the amounts must agree within epsilon and the dates must fall
//     within the tolerance window. A reference, folio or voucher found in the
//     bank text adds a fixed bonus.
//
// The confidence stored on a matched row is the rule score clamped to
// [0, 1]. Income scores start at 1, so every income match reports 1 and the
// date gap only shows in which candidate wins.
//
// Assignment is greedy and one-to-one: bank rows are visited in order and
// each internal movement can be consumed once per pass.
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	config.DateToleranceDays = 2
//
//	engine := matcher.NewEngine()
//	matched, stats, err := engine.AutoMatch(models.MovementIncome, bank, internal, config)
package matcher

import (
	"fmt"
	"time"

	"golang-bank-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// ReferenceBonus is added to an expense candidate whose reference appears
// in the bank description or reference.
const ReferenceBonus = 0.25

// Config holds the tolerances for an auto-match pass.
type Config struct {
	// DateToleranceDays is the widest date gap, in whole days, that still
	// scores. Expense candidates beyond it are not eligible.
	DateToleranceDays int `json:"date_tolerance_days"`

	// AmountEpsilon is the inclusive amount tolerance.
	AmountEpsilon decimal.Decimal `json:"amount_epsilon"`

	// Scope limits which bank rows and internal movements take part.
	Scope models.DateRange `json:"scope"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DateToleranceDays: 3,
		AmountEpsilon:     decimal.RequireFromString("0.01"),
	}
}

// Validate checks if the matching configuration is valid
func (c *Config) Validate() error {
	if c.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", c.DateToleranceDays)
	}

	if c.AmountEpsilon.IsNegative() {
		return fmt.Errorf("amount epsilon cannot be negative: %s", c.AmountEpsilon)
	}

	if err := c.Scope.Validate(); err != nil {
		return fmt.Errorf("invalid scope: %w", err)
	}

	return nil
}

// Clone creates a deep copy of the matching configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	return &Config{
		DateToleranceDays: c.DateToleranceDays,
		AmountEpsilon:     c.AmountEpsilon,
		Scope:             c.Scope,
	}
}

// WithinAmountTolerance reports whether |a - b| <= epsilon.
func (c *Config) WithinAmountTolerance(a, b decimal.Decimal) bool {
	return models.CompareAmountsWithTolerance(a, b, c.AmountEpsilon)
}

// DateProximity scores how close two dates are, from 1 (same day) down to 0
// (at or beyond the tolerance). A nil date on either side scores 0.
func (c *Config) DateProximity(a, b *time.Time) float64 {
	if a == nil || b == nil {
		return 0
	}

	gap := models.DaysBetween(*a, *b)
	if c.DateToleranceDays == 0 {
		if gap == 0 {
			return 1
		}
		return 0
	}

	proximity := 1 - float64(gap)/float64(c.DateToleranceDays)
	if proximity < 0 {
		return 0
	}
	return proximity
}

// IsWithinDateTolerance reports whether both dates are present and at most
// DateToleranceDays apart.
func (c *Config) IsWithinDateTolerance(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	return models.DaysBetween(*a, *b) <= c.DateToleranceDays
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{DateTolerance: %d days, AmountEpsilon: %s, Scope: %s}",
		c.DateToleranceDays, c.AmountEpsilon, c.Scope)
}
