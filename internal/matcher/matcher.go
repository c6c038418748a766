package matcher

import (
	"fmt"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// Engine runs auto-match passes. It holds no working set; every call takes
// the movement sets explicitly and returns a new bank slice.
type Engine struct {
	Config *Config
	logger logger.Logger
}

// MatchStats summarizes one auto-match pass.
type MatchStats struct {
	Considered    int
	Matched       int
	Pending       int
	PassedThrough int
	Duration      time.Duration
}

func (s *MatchStats) String() string {
	return fmt.Sprintf("considered %d, matched %d, pending %d, passed through %d in %s",
		s.Considered, s.Matched, s.Pending, s.PassedThrough, s.Duration)
}

// NewEngine creates a new matching engine with the specified configuration
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{
		Config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// AutoMatch assigns bank rows to internal movements using the rule for flow.
// A nil cfg uses the engine configuration. The inputs are not modified; the
// returned slice holds fresh copies in the original order.
//
// Rows marked manual_match or ignored, and rows outside cfg.Scope, pass
// through unchanged and any internal movement they hold stays reserved.
// Every other row is re-evaluated: it becomes matched with the best
// candidate, or pending when none qualifies.
func (e *Engine) AutoMatch(
	flow models.MovementType,
	bank []*models.BankMovement,
	internal []*models.InternalMovement,
	cfg *Config,
) ([]*models.BankMovement, *MatchStats, error) {
	start := time.Now()

	if !flow.IsValid() {
		return nil, nil, errors.ValidationError(errors.CodeInvalidValue, "movement type", flow, nil)
	}
	if cfg == nil {
		cfg = e.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.ValidationError(errors.CodeInvalidValue, "matching config", cfg.String(), err)
	}

	out := models.CloneBankMovements(bank)
	stats := &MatchStats{}

	passThrough := make([]bool, len(out))
	reserved := make(map[string]bool)
	for i, row := range out {
		if row.Status == models.StatusManualMatch || row.Status == models.StatusIgnored || !cfg.Scope.Contains(row.Date) {
			passThrough[i] = true
			if row.HasAssignment() {
				reserved[*row.MatchedInternalID] = true
			}
		}
	}

	index := NewInternalIndex(internal, cfg.Scope, reserved)
	match := ruleFor(flow)

	for i, row := range out {
		if passThrough[i] {
			stats.PassedThrough++
			continue
		}
		stats.Considered++

		best := match(row, index, cfg)
		if best == nil {
			row.Reset(models.StatusPending)
			stats.Pending++
			continue
		}

		row.Assign(models.StatusMatched, best.movement.ID, confidence(best.score))
		index.Consume(best.movement.ID)
		stats.Matched++
	}
	stats.Duration = time.Since(start)

	pool := index.GetIndexStats()
	e.logger.WithFields(logger.Fields{
		"flow":              flow,
		"scope":             cfg.Scope.String(),
		"internal_pool":     pool.TotalMovements,
		"unique_refs":       pool.UniqueRefs,
		"empty_references":  pool.EmptyReferences,
		"internal_consumed": pool.Consumed,
		"considered":        stats.Considered,
		"matched":           stats.Matched,
		"pending":           stats.Pending,
		"passed_through":    stats.PassedThrough,
		"duration":          stats.Duration,
	}).Info("Auto-match completed")

	return out, stats, nil
}
