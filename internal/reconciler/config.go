package reconciler

import (
	"fmt"

	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/parsers"

	"github.com/shopspring/decimal"
)

// Audit and notification labels written by the workspace.
const (
	AuditModule = "finance"
	EntityType  = "reconciliation_session"
)

// Config holds the workspace thresholds.
type Config struct {
	// Matching is used by RunAutoMatch when no config is passed. Its scope
	// is replaced by the workspace date range when left empty.
	Matching *matcher.Config

	// Parsing configures bank statement imports.
	Parsing *parsers.ParseConfig

	// NotifyThreshold is the absolute unmatched difference at which a
	// finalize emits a notification.
	NotifyThreshold decimal.Decimal

	// HighPriorityThreshold raises the notification priority to high.
	HighPriorityThreshold decimal.Decimal

	// MaxNameLength caps session names, in runes.
	MaxNameLength int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() *Config {
	return &Config{
		Matching:              matcher.DefaultConfig(),
		Parsing:               parsers.DefaultParseConfig(),
		NotifyThreshold:       decimal.NewFromFloat(0.01),
		HighPriorityThreshold: decimal.NewFromInt(1000),
		MaxNameLength:         120,
	}
}

// Validate checks the thresholds.
func (c *Config) Validate() error {
	if c.Matching == nil {
		return fmt.Errorf("matching config is required")
	}
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if c.NotifyThreshold.IsNegative() {
		return fmt.Errorf("notify threshold cannot be negative: %s", c.NotifyThreshold)
	}
	if c.HighPriorityThreshold.LessThan(c.NotifyThreshold) {
		return fmt.Errorf("high priority threshold %s is below notify threshold %s",
			c.HighPriorityThreshold, c.NotifyThreshold)
	}
	if c.MaxNameLength <= 0 {
		return fmt.Errorf("max name length must be positive: %d", c.MaxNameLength)
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	defaults := DefaultConfig()
	if c == nil {
		return defaults
	}
	merged := *c
	if merged.Matching == nil {
		merged.Matching = defaults.Matching
	}
	if merged.Parsing == nil {
		merged.Parsing = defaults.Parsing
	}
	if merged.NotifyThreshold.IsZero() {
		merged.NotifyThreshold = defaults.NotifyThreshold
	}
	if merged.HighPriorityThreshold.IsZero() {
		merged.HighPriorityThreshold = defaults.HighPriorityThreshold
	}
	if merged.MaxNameLength == 0 {
		merged.MaxNameLength = defaults.MaxNameLength
	}
	return &merged
}
