package matcher

import (
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/textnorm"
)

// InternalIndex holds the internal movements eligible for one auto-match
// pass and tracks which of them have been consumed.
type InternalIndex struct {
	// ReferenceIndex maps compacted references to positions in Movements.
	ReferenceIndex map[string][]int

	// Movements holds the eligible movements in their original order.
	Movements []*models.InternalMovement

	// identifiers holds, per position, the compacted reference, folio and
	// voucher the expense rule looks for in the bank text.
	identifiers [][]string
	consumed    map[string]bool
}

// IndexStats provides statistics about an index
type IndexStats struct {
	TotalMovements  int
	UniqueRefs      int
	EmptyReferences int
	Consumed        int
}

// NewInternalIndex indexes the movements that fall inside scope. Ids in
// preConsumed are never offered as candidates.
func NewInternalIndex(movements []*models.InternalMovement, scope models.DateRange, preConsumed map[string]bool) *InternalIndex {
	index := &InternalIndex{
		ReferenceIndex: make(map[string][]int),
		consumed:       make(map[string]bool, len(preConsumed)),
	}
	for id := range preConsumed {
		index.consumed[id] = true
	}

	for _, m := range movements {
		if m == nil || !scope.Contains(m.MovementDate) {
			continue
		}
		pos := len(index.Movements)
		key := textnorm.Compact(m.ReferenceText)
		index.Movements = append(index.Movements, m)
		index.identifiers = append(index.identifiers, identifiers(key, m))
		if key != "" {
			index.ReferenceIndex[key] = append(index.ReferenceIndex[key], pos)
		}
	}
	return index
}

// identifiers returns the distinct non-empty compacted identifiers of m,
// reference first, then folio and voucher.
func identifiers(reference string, m *models.InternalMovement) []string {
	values := []string{reference}
	if m.Expense != nil {
		values = append(values, textnorm.Compact(m.Expense.Folio), textnorm.Compact(m.Expense.Voucher))
	}

	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ByReference returns unconsumed movements whose compacted reference equals
// key, in original order.
func (idx *InternalIndex) ByReference(key string) []*models.InternalMovement {
	if key == "" {
		return nil
	}
	var out []*models.InternalMovement
	for _, pos := range idx.ReferenceIndex[key] {
		m := idx.Movements[pos]
		if !idx.consumed[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// Consume removes id from the candidate pool.
func (idx *InternalIndex) Consume(id string) {
	idx.consumed[id] = true
}

// IsConsumed reports whether id has been taken.
func (idx *InternalIndex) IsConsumed(id string) bool {
	return idx.consumed[id]
}

// GetIndexStats returns statistics about the index
func (idx *InternalIndex) GetIndexStats() IndexStats {
	consumed := 0
	for _, m := range idx.Movements {
		if idx.consumed[m.ID] {
			consumed++
		}
	}
	return IndexStats{
		TotalMovements:  len(idx.Movements),
		UniqueRefs:      len(idx.ReferenceIndex),
		EmptyReferences: len(idx.Movements) - countIndexed(idx.ReferenceIndex),
		Consumed:        consumed,
	}
}

func countIndexed(refs map[string][]int) int {
	n := 0
	for _, positions := range refs {
		n += len(positions)
	}
	return n
}
