package parsers

import (
	"io"
	"slices"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/textnorm"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// Ledger seed columns. Payments use unit/account/resident, expenses use
// voucher/folio/vendor.
var ledgerColumns = map[string][]string{
	"id":          {"id"},
	"date":        {"date", "fecha"},
	"amount":      {"amount", "monto", "importe"},
	"reference":   {"reference", "referencia", "paymentreference"},
	"description": {"description", "descripcion", "concepto"},
	"unit":        {"unit", "unidad", "unitnumber"},
	"account":     {"account", "cuenta", "accountnumber"},
	"resident":    {"resident", "residente", "residentname"},
	"voucher":     {"voucher", "comprobante"},
	"folio":       {"folio"},
	"vendor":      {"vendor", "proveedor"},
}

// LedgerParser reads internal ledger seed files.
type LedgerParser struct {
	*BaseParser
}

// NewLedgerParser creates a ledger parser; nil config uses the defaults.
func NewLedgerParser(config *ParseConfig) *LedgerParser {
	return &LedgerParser{BaseParser: NewBaseParser(config, "ledger_parser")}
}

// ParseLedgerCSV is a convenience wrapper around LedgerParser.Parse.
func ParseLedgerCSV(r io.Reader, kind models.MovementType, source string) ([]*models.InternalMovement, *ParseStats, error) {
	return NewLedgerParser(nil).Parse(r, kind, source)
}

// Parse reads payments (income) or expenses (expense). Header names are
// matched exactly after compaction, so "Unit Number" and "unit_number" both
// resolve.
func (p *LedgerParser) Parse(r io.Reader, kind models.MovementType, source string) ([]*models.InternalMovement, *ParseStats, error) {
	if !kind.IsValid() {
		return nil, nil, errors.ValidationError(errors.CodeInvalidValue, "movement type", kind, nil)
	}

	parseCtx := NewParseContext(source, p.config.MaxIssues)
	records, err := p.ReadRecords(r, parseCtx)
	if err != nil {
		return nil, parseCtx.Stats, err
	}

	index := make(map[string]int, len(ledgerColumns))
	for name, aliases := range ledgerColumns {
		index[name] = -1
		for i, h := range parseCtx.Headers {
			if slices.Contains(aliases, textnorm.Compact(h)) {
				index[name] = i
				break
			}
		}
	}
	for _, required := range []string{"id", "amount"} {
		if index[required] < 0 {
			return nil, parseCtx.Stats, errors.ValidationError(errors.CodeMissingColumn, required, source, nil)
		}
	}

	movements := make([]*models.InternalMovement, 0, len(records))
	for i, record := range records {
		line := i + 2
		id := field(record, index["id"])
		if id == "" {
			parseCtx.Stats.RecordsDropped++
			parseCtx.Stats.Issues.Add(errors.RowIssue{Line: line, Column: "id", Code: errors.CodeInvalidValue, Reason: "missing id"})
			continue
		}

		rawAmount := field(record, index["amount"])
		amount, err := ParseAmount(rawAmount)
		if err != nil || !amount.IsPositive() {
			parseCtx.Stats.RecordsDropped++
			parseCtx.Stats.Issues.Add(errors.RowIssue{Line: line, Column: "amount", Value: rawAmount, Code: errors.CodeInvalidAmount, Reason: "amount must be a positive number"})
			continue
		}

		date := ParseDate(field(record, index["date"]))
		if date == nil {
			parseCtx.Stats.UndatedRows++
		}

		m := &models.InternalMovement{
			ID:            id,
			Kind:          kind,
			Amount:        amount,
			MovementDate:  date,
			ReferenceText: field(record, index["reference"]),
			Description:   field(record, index["description"]),
		}
		if kind == models.MovementIncome {
			m.Payment = &models.PaymentDetails{
				UnitNumber:    field(record, index["unit"]),
				AccountNumber: field(record, index["account"]),
				ResidentName:  field(record, index["resident"]),
			}
		} else {
			m.Expense = &models.ExpenseDetails{
				Voucher: field(record, index["voucher"]),
				Folio:   field(record, index["folio"]),
				Vendor:  field(record, index["vendor"]),
			}
		}
		movements = append(movements, m)
	}
	parseCtx.Stats.RecordsKept = len(movements)

	p.logger.WithFields(logger.Fields{
		"source":  source,
		"kind":    kind,
		"kept":    parseCtx.Stats.RecordsKept,
		"dropped": parseCtx.Stats.RecordsDropped,
	}).Info("Parsed ledger file")

	return movements, parseCtx.Stats, nil
}
