package parsers

import (
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/textnorm"
)

// ColumnRole is the meaning a header cell can resolve to.
type ColumnRole string

const (
	RoleDate        ColumnRole = "date"
	RoleDescription ColumnRole = "description"
	RoleReference   ColumnRole = "reference"
	RoleAmount      ColumnRole = "amount"
	RoleCredit      ColumnRole = "credit"
	RoleDebit       ColumnRole = "debit"
)

// Keywords are matched as substrings of the folded header cell.
var roleKeywords = map[ColumnRole][]string{
	RoleDate:        {"fecha", "date"},
	RoleDescription: {"descripcion", "concepto", "detalle", "description", "glosa"},
	RoleReference:   {"referencia", "reference", "ref", "folio"},
	RoleAmount:      {"monto", "importe", "amount", "valor"},
	RoleCredit:      {"abono", "credito", "deposito", "credit", "haber"},
	RoleDebit:       {"cargo", "debito", "retiro", "debit", "debe"},
}

// Credit and debit are resolved before amount so that a header such as
// "Monto Abono" is claimed by the more specific role.
var resolutionOrder = []ColumnRole{
	RoleDate, RoleCredit, RoleDebit, RoleAmount, RoleReference, RoleDescription,
}

// ColumnMap maps roles to column indexes; a missing role maps to -1.
type ColumnMap struct {
	indexes map[ColumnRole]int
	headers []string
}

// ResolveColumns assigns each role to the first unclaimed header containing
// one of its keywords.
func ResolveColumns(headers []string) *ColumnMap {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = textnorm.Fold(h)
	}

	cm := &ColumnMap{indexes: make(map[ColumnRole]int), headers: headers}
	claimed := make(map[int]bool)
	for _, role := range resolutionOrder {
		cm.indexes[role] = -1
		for i, h := range folded {
			if claimed[i] || h == "" {
				continue
			}
			if textnorm.ContainsAny(h, roleKeywords[role]...) {
				cm.indexes[role] = i
				claimed[i] = true
				break
			}
		}
	}
	return cm
}

// Index returns the column index for role, or -1.
func (cm *ColumnMap) Index(role ColumnRole) int {
	if idx, ok := cm.indexes[role]; ok {
		return idx
	}
	return -1
}

// Has reports whether role resolved to a column.
func (cm *ColumnMap) Has(role ColumnRole) bool {
	return cm.Index(role) >= 0
}

// Header returns the original header text for role.
func (cm *ColumnMap) Header(role ColumnRole) string {
	idx := cm.Index(role)
	if idx < 0 || idx >= len(cm.headers) {
		return string(role)
	}
	return cm.headers[idx]
}

// AmountColumn picks the column carrying amounts for the flow: income
// prefers a credit column, expense a debit column, and both fall back to a
// single amount column.
func (cm *ColumnMap) AmountColumn(flow models.MovementType) (ColumnRole, bool) {
	preferred := RoleCredit
	if flow == models.MovementExpense {
		preferred = RoleDebit
	}
	if cm.Has(preferred) {
		return preferred, true
	}
	if cm.Has(RoleAmount) {
		return RoleAmount, true
	}
	return "", false
}
