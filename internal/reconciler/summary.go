package reconciler

import (
	"golang-bank-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// ComputeSummary derives the reconciliation KPIs from the current sets.
//
// Bank figures split the bank total by status, so
// BankTotal == BankPending + BankMatched + BankIgnored always holds.
// InternalMatched sums each internal movement referenced by at least one
// bank row, counted once. UnmatchedDifference is BankTotal - InternalMatched.
func ComputeSummary(bank []*models.BankMovement, internal []*models.InternalMovement) models.Summary {
	summary := models.Summary{
		BankTotal:       decimal.Zero,
		BankMatched:     decimal.Zero,
		BankPending:     decimal.Zero,
		BankIgnored:     decimal.Zero,
		InternalTotal:   decimal.Zero,
		InternalMatched: decimal.Zero,
		BankCount:       len(bank),
		InternalCount:   len(internal),
	}

	referenced := make(map[string]bool)
	for _, m := range bank {
		summary.BankTotal = summary.BankTotal.Add(m.Amount)
		switch {
		case m.Status.IsAssigned():
			summary.BankMatched = summary.BankMatched.Add(m.Amount)
			summary.MatchedCount++
		case m.Status == models.StatusIgnored:
			summary.BankIgnored = summary.BankIgnored.Add(m.Amount)
			summary.IgnoredCount++
		default:
			summary.BankPending = summary.BankPending.Add(m.Amount)
			summary.PendingCount++
		}
		if m.HasAssignment() {
			referenced[*m.MatchedInternalID] = true
		}
	}

	for _, m := range internal {
		summary.InternalTotal = summary.InternalTotal.Add(m.Amount)
		if referenced[m.ID] {
			summary.InternalMatched = summary.InternalMatched.Add(m.Amount)
			delete(referenced, m.ID)
		}
	}

	summary.UnmatchedDifference = summary.BankTotal.Sub(summary.InternalMatched)
	return summary
}

// StatusCounts tallies bank rows by status.
func StatusCounts(bank []*models.BankMovement) map[string]int {
	counts := map[string]int{
		string(models.StatusPending):     0,
		string(models.StatusMatched):     0,
		string(models.StatusManualMatch): 0,
		string(models.StatusIgnored):     0,
	}
	for _, m := range bank {
		counts[string(m.Status)]++
	}
	return counts
}
