package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// MovementType selects the reconciliation flow: income compares bank credits
// against resident payments, expense compares debits against vendor expenses.
type MovementType string

const (
	MovementIncome  MovementType = "income"
	MovementExpense MovementType = "expense"
)

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid checks if the movement type is valid
func (t MovementType) IsValid() bool {
	return t == MovementIncome || t == MovementExpense
}

// ParseMovementType parses a movement type from user input
func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid movement type: %q (expected income or expense)", s)
	}
	return t, nil
}

// MovementStatus is the reconciliation state of a bank movement.
type MovementStatus string

const (
	StatusPending     MovementStatus = "pending"
	StatusMatched     MovementStatus = "matched"
	StatusManualMatch MovementStatus = "manual_match"
	StatusIgnored     MovementStatus = "ignored"
)

// IsAssigned reports whether the status carries an internal movement.
func (s MovementStatus) IsAssigned() bool {
	return s == StatusMatched || s == StatusManualMatch
}

// BankMovement is one row from an imported bank statement. Amount is always
// the magnitude; direction comes from the active flow.
type BankMovement struct {
	ID                string          `json:"id"`
	Date              *time.Time      `json:"-"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	Reference         string          `json:"reference"`
	Status            MovementStatus  `json:"status"`
	MatchedInternalID *string         `json:"matchedInternalId,omitempty"`
	// Confidence is advisory only.
	Confidence *float64 `json:"confidence,omitempty"`
}

// NewBankMovement creates a pending bank movement
func NewBankMovement(id string, date *time.Time, amount decimal.Decimal, description, reference string) *BankMovement {
	return &BankMovement{
		ID:          id,
		Date:        date,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		Status:      StatusPending,
	}
}

// HasAssignment reports whether the movement points at an internal movement.
func (m *BankMovement) HasAssignment() bool {
	return m.MatchedInternalID != nil
}

// Assign sets a match. The status must be matched or manual_match.
func (m *BankMovement) Assign(status MovementStatus, internalID string, confidence float64) {
	id := internalID
	c := confidence
	m.Status = status
	m.MatchedInternalID = &id
	m.Confidence = &c
}

// Reset clears any assignment and sets the given unassigned status.
func (m *BankMovement) Reset(status MovementStatus) {
	m.Status = status
	m.MatchedInternalID = nil
	m.Confidence = nil
}

// Clone returns a deep copy of the movement.
func (m *BankMovement) Clone() *BankMovement {
	c := *m
	if m.Date != nil {
		d := *m.Date
		c.Date = &d
	}
	if m.MatchedInternalID != nil {
		id := *m.MatchedInternalID
		c.MatchedInternalID = &id
	}
	if m.Confidence != nil {
		v := *m.Confidence
		c.Confidence = &v
	}
	return &c
}

// Validate checks the assignment invariant.
func (m *BankMovement) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("bank movement id cannot be empty")
	}
	if !m.Amount.IsPositive() {
		return fmt.Errorf("bank movement %s: amount must be positive, got %s", m.ID, m.Amount)
	}
	if m.Status.IsAssigned() != m.HasAssignment() {
		return fmt.Errorf("bank movement %s: status %s inconsistent with assignment", m.ID, m.Status)
	}
	return nil
}

func (m *BankMovement) String() string {
	return fmt.Sprintf("BankMovement{ID: %s, Date: %s, Amount: %s, Reference: %q, Status: %s}",
		m.ID, FormatDate(m.Date), m.Amount.String(), m.Reference, m.Status)
}

// MarshalJSON renders the date as YYYY-MM-DD (or null).
func (m *BankMovement) MarshalJSON() ([]byte, error) {
	type Alias BankMovement
	return json.Marshal(&struct {
		Date *string `json:"date"`
		*Alias
	}{
		Date:  datePtr(m.Date),
		Alias: (*Alias)(m),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for BankMovement
func (m *BankMovement) UnmarshalJSON(data []byte) error {
	type Alias BankMovement
	aux := &struct {
		Date *string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	date, err := parseDatePtr(aux.Date)
	if err != nil {
		return fmt.Errorf("bank movement %s: %w", m.ID, err)
	}
	m.Date = date
	return nil
}

// PaymentDetails identifies a resident payment.
type PaymentDetails struct {
	UnitNumber    string `json:"unitNumber,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	ResidentName  string `json:"residentName,omitempty"`
}

// ExpenseDetails identifies a vendor expense.
type ExpenseDetails struct {
	Voucher string `json:"voucher,omitempty"`
	Folio   string `json:"folio,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
}

// InternalMovement is a payment or expense recorded by the internal ledger.
// Within a session it is a read-only snapshot.
type InternalMovement struct {
	ID            string          `json:"id"`
	Kind          MovementType    `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	MovementDate  *time.Time      `json:"-"`
	ReferenceText string          `json:"referenceText"`
	Description   string          `json:"description,omitempty"`
	Payment       *PaymentDetails `json:"payment,omitempty"`
	Expense       *ExpenseDetails `json:"expense,omitempty"`
}

// Label returns the variant-specific identifier shown to users.
func (m *InternalMovement) Label() string {
	switch {
	case m.Payment != nil && m.Payment.UnitNumber != "":
		return "unit " + m.Payment.UnitNumber
	case m.Expense != nil && m.Expense.Folio != "":
		return "folio " + m.Expense.Folio
	case m.Expense != nil && m.Expense.Voucher != "":
		return "voucher " + m.Expense.Voucher
	}
	return m.ReferenceText
}

// Clone returns a deep copy of the movement.
func (m *InternalMovement) Clone() *InternalMovement {
	c := *m
	if m.MovementDate != nil {
		d := *m.MovementDate
		c.MovementDate = &d
	}
	if m.Payment != nil {
		p := *m.Payment
		c.Payment = &p
	}
	if m.Expense != nil {
		e := *m.Expense
		c.Expense = &e
	}
	return &c
}

// MarshalJSON renders the movement date as YYYY-MM-DD (or null).
func (m *InternalMovement) MarshalJSON() ([]byte, error) {
	type Alias InternalMovement
	return json.Marshal(&struct {
		MovementDate *string `json:"movementDate"`
		*Alias
	}{
		MovementDate: datePtr(m.MovementDate),
		Alias:        (*Alias)(m),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for InternalMovement
func (m *InternalMovement) UnmarshalJSON(data []byte) error {
	type Alias InternalMovement
	aux := &struct {
		MovementDate *string `json:"movementDate"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	date, err := parseDatePtr(aux.MovementDate)
	if err != nil {
		return fmt.Errorf("internal movement %s: %w", m.ID, err)
	}
	m.MovementDate = date
	return nil
}

// Actor is the tenant-scoped identity performing an operation.
type Actor struct {
	TenantID string `json:"-"`
	ID       string `json:"id"`
	Role     string `json:"role"`
}

// CloneBankMovements deep-copies a bank set.
func CloneBankMovements(in []*BankMovement) []*BankMovement {
	out := make([]*BankMovement, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// CloneInternalMovements deep-copies an internal set.
func CloneInternalMovements(in []*InternalMovement) []*InternalMovement {
	out := make([]*InternalMovement, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// CompareAmountsWithTolerance reports whether |a - b| <= tolerance.
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
