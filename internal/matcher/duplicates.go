package matcher

import (
	"fmt"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/textnorm"
)

// DuplicateGroup is a set of bank rows that look like the same transaction
// exported twice.
type DuplicateGroup struct {
	GroupID   string
	Movements []*models.BankMovement
	Reason    string
}

// DetectDuplicates groups bank rows that share date, amount and normalized
// text. Groups are returned in the order their first row appears.
func DetectDuplicates(bank []*models.BankMovement) []DuplicateGroup {
	var groups []DuplicateGroup
	processed := make(map[int]bool)

	for i, first := range bank {
		if processed[i] {
			continue
		}

		duplicates := []*models.BankMovement{first}
		for j := i + 1; j < len(bank); j++ {
			if processed[j] {
				continue
			}
			if isPotentialDuplicate(first, bank[j]) {
				duplicates = append(duplicates, bank[j])
				processed[j] = true
			}
		}

		if len(duplicates) > 1 {
			groups = append(groups, DuplicateGroup{
				GroupID:   fmt.Sprintf("DUP_%s", first.ID),
				Movements: duplicates,
				Reason: fmt.Sprintf("%d rows dated %s for %s with the same description",
					len(duplicates), dateLabel(first.Date), first.Amount.StringFixed(2)),
			})
		}
		processed[i] = true
	}

	return groups
}

func isPotentialDuplicate(a, b *models.BankMovement) bool {
	if !a.Amount.Equal(b.Amount) {
		return false
	}
	if models.FormatDate(a.Date) != models.FormatDate(b.Date) {
		return false
	}
	return textnorm.Compact(a.Description+a.Reference) == textnorm.Compact(b.Description+b.Reference)
}

func dateLabel(date *time.Time) string {
	if date == nil {
		return "(no date)"
	}
	return models.FormatDate(date)
}
