package matcher

import (
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

// ManualConfidence is recorded on every manual match.
const ManualConfidence = 1.0

// SetManualMatch forces bankID onto internalID with status manual_match.
// Other rows are never touched, so an internal movement may end up held by
// more than one row until the user clears one of them.
func SetManualMatch(bank []*models.BankMovement, internal []*models.InternalMovement, bankID, internalID string) ([]*models.BankMovement, error) {
	out := models.CloneBankMovements(bank)
	row := findBank(out, bankID)
	if row == nil {
		return out, errors.NotFoundError("bank movement", bankID)
	}
	if !hasInternal(internal, internalID) {
		return out, errors.NotFoundError("internal movement", internalID)
	}
	row.Assign(models.StatusManualMatch, internalID, ManualConfidence)
	return out, nil
}

// ClearMatch resets bankID to pending.
func ClearMatch(bank []*models.BankMovement, bankID string) ([]*models.BankMovement, error) {
	out := models.CloneBankMovements(bank)
	row := findBank(out, bankID)
	if row == nil {
		return out, errors.NotFoundError("bank movement", bankID)
	}
	row.Reset(models.StatusPending)
	return out, nil
}

// IgnoreMovement marks bankID as ignored and drops any assignment.
func IgnoreMovement(bank []*models.BankMovement, bankID string) ([]*models.BankMovement, error) {
	out := models.CloneBankMovements(bank)
	row := findBank(out, bankID)
	if row == nil {
		return out, errors.NotFoundError("bank movement", bankID)
	}
	row.Reset(models.StatusIgnored)
	return out, nil
}

func findBank(bank []*models.BankMovement, id string) *models.BankMovement {
	for _, m := range bank {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func hasInternal(internal []*models.InternalMovement, id string) bool {
	for _, m := range internal {
		if m.ID == id {
			return true
		}
	}
	return false
}

// CheckAssignments reports internal ids held by more than one bank row, in
// first-seen order.
func CheckAssignments(bank []*models.BankMovement) []string {
	seen := make(map[string]int)
	var order []string
	for _, m := range bank {
		if !m.HasAssignment() {
			continue
		}
		id := *m.MatchedInternalID
		if seen[id] == 0 {
			order = append(order, id)
		}
		seen[id]++
	}

	var dupes []string
	for _, id := range order {
		if seen[id] > 1 {
			dupes = append(dupes, id)
		}
	}
	return dupes
}
