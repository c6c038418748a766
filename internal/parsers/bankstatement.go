package parsers

import (
	"strings"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// BankStatementParser normalizes bank statement CSV exports.
type BankStatementParser struct {
	*BaseParser
	options *NormalizerOptions
}

// NewBankStatementParser creates a parser; nil options use the defaults.
func NewBankStatementParser(options *NormalizerOptions) *BankStatementParser {
	options = options.withDefaults()
	return &BankStatementParser{
		BaseParser: NewBaseParser(options.Parse, "bank_statement_parser"),
		options:    options,
	}
}

// ParseBankCSV is a convenience wrapper around BankStatementParser.Parse.
func ParseBankCSV(text string, flow models.MovementType, options *NormalizerOptions) ([]*models.BankMovement, *ParseStats, error) {
	return NewBankStatementParser(options).Parse(text, flow)
}

// Parse turns raw statement text into pending bank movements, in file
// order. Rows whose amount is zero or unreadable are dropped; rows whose
// date is unrecognized are kept with a nil date.
func (p *BankStatementParser) Parse(text string, flow models.MovementType) ([]*models.BankMovement, *ParseStats, error) {
	if !flow.IsValid() {
		return nil, nil, errors.ValidationError(errors.CodeInvalidValue, "movement type", flow, nil)
	}

	parseCtx := NewParseContext(p.options.Source, p.config.MaxIssues)
	records, err := p.ReadRecords(strings.NewReader(text), parseCtx)
	if err != nil {
		return nil, parseCtx.Stats, err
	}

	parseCtx.Columns = ResolveColumns(parseCtx.Headers)
	amountRole, ok := parseCtx.Columns.AmountColumn(flow)
	if !ok {
		p.logger.WithFields(logger.Fields{
			"source":  p.options.Source,
			"headers": parseCtx.Headers,
			"flow":    flow,
		}).Warn("No amount column could be resolved")
		return nil, parseCtx.Stats, errors.ValidationError(errors.CodeMissingColumn, "amount", strings.Join(parseCtx.Headers, ","), nil)
	}

	cols := parseCtx.Columns
	movements := make([]*models.BankMovement, 0, len(records))
	for i, record := range records {
		line := i + 2
		rawAmount := field(record, cols.Index(amountRole))
		amount, err := ParseAmount(rawAmount)
		if err != nil || !amount.IsPositive() {
			reason := "zero amount"
			if err != nil {
				reason = err.Error()
			}
			parseCtx.Stats.RecordsDropped++
			parseCtx.Stats.Issues.Add(errors.RowIssue{
				Line:   line,
				Column: cols.Header(amountRole),
				Value:  rawAmount,
				Code:   errors.CodeInvalidAmount,
				Reason: reason,
			})
			continue
		}

		rawDate := field(record, cols.Index(RoleDate))
		date := ParseDate(rawDate)
		if date == nil {
			parseCtx.Stats.UndatedRows++
			parseCtx.Stats.Issues.Add(errors.RowIssue{
				Line:   line,
				Column: cols.Header(RoleDate),
				Value:  rawDate,
				Code:   errors.CodeInvalidDate,
				Reason: "date not recognized, row kept without a date",
			})
		}

		movements = append(movements, models.NewBankMovement(
			p.options.IDGenerator(),
			date,
			amount,
			field(record, cols.Index(RoleDescription)),
			field(record, cols.Index(RoleReference)),
		))
	}
	parseCtx.Stats.RecordsKept = len(movements)

	p.logger.WithFields(logger.Fields{
		"source":        p.options.Source,
		"flow":          flow,
		"amount_column": cols.Header(amountRole),
		"rows":          parseCtx.Stats.TotalRows,
		"kept":          parseCtx.Stats.RecordsKept,
		"dropped":       parseCtx.Stats.RecordsDropped,
		"undated":       parseCtx.Stats.UndatedRows,
	}).Info("Parsed bank statement")

	return movements, parseCtx.Stats, nil
}
