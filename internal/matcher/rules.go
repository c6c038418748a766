package matcher

import (
	"strings"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/textnorm"
)

// candidate is the best internal movement found for a bank row.
type candidate struct {
	movement *models.InternalMovement
	score    float64
}

// rule selects the best unconsumed candidate for a bank row, or nil.
type rule func(bank *models.BankMovement, index *InternalIndex, cfg *Config) *candidate

func ruleFor(flow models.MovementType) rule {
	if flow == models.MovementExpense {
		return expenseRule
	}
	return incomeRule
}

// BankKey is the normalized key used by the income rule: the compacted
// reference, or the compacted description when the reference is blank.
func BankKey(bank *models.BankMovement) string {
	if strings.TrimSpace(bank.Reference) != "" {
		return textnorm.Compact(bank.Reference)
	}
	return textnorm.Compact(bank.Description)
}

// incomeRule requires an exact reference match and an amount within
// epsilon. Score is 1 + date proximity.
func incomeRule(bank *models.BankMovement, index *InternalIndex, cfg *Config) *candidate {
	key := BankKey(bank)
	if key == "" {
		return nil
	}

	var best *candidate
	for _, m := range index.ByReference(key) {
		if !cfg.WithinAmountTolerance(m.Amount, bank.Amount) {
			continue
		}
		score := 1 + cfg.DateProximity(bank.Date, m.MovementDate)
		best = better(best, m, score)
	}
	return best
}

// expenseRule requires an amount within epsilon and dates within the
// tolerance. Score is date proximity plus ReferenceBonus when the internal
// reference, folio or voucher appears in the bank text.
func expenseRule(bank *models.BankMovement, index *InternalIndex, cfg *Config) *candidate {
	if bank.Date == nil {
		return nil
	}
	bankText := textnorm.Compact(bank.Description + " " + bank.Reference)

	var best *candidate
	for pos, m := range index.Movements {
		if index.IsConsumed(m.ID) {
			continue
		}
		if !cfg.WithinAmountTolerance(m.Amount, bank.Amount) {
			continue
		}
		if !cfg.IsWithinDateTolerance(bank.Date, m.MovementDate) {
			continue
		}

		score := cfg.DateProximity(bank.Date, m.MovementDate)
		if mentions(bankText, index.identifiers[pos]) {
			score += ReferenceBonus
		}
		best = better(best, m, score)
	}
	return best
}

func mentions(bankText string, ids []string) bool {
	for _, id := range ids {
		if strings.Contains(bankText, id) {
			return true
		}
	}
	return false
}

// better keeps the current best on ties so that earlier movements win.
func better(best *candidate, m *models.InternalMovement, score float64) *candidate {
	if best == nil || score > best.score {
		return &candidate{movement: m, score: score}
	}
	return best
}

// confidence clamps a rule score into [0, 1].
func confidence(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
