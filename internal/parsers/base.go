// Package parsers turns raw delimited text into typed movements.
//
// Bank statements arrive as CSV exports with headers that differ from bank
// to bank and from one language to another. Columns are therefore resolved
// by keyword, not by position: header cells are folded (lower-cased, accents
// removed) and matched against keyword sets for each role.
//
// Parser entry points:
//   - ParseBankCSV: bank statement rows for the income or expense flow
//   - ParseLedgerCSV: internal ledger seed files (payments or expenses)
//
// Amount and date parsing tolerate the common variations found in exports:
//   - thousands/decimal separators in either convention ("1,500.00", "1.500,00")
//   - currency symbols and stray text around the number
//   - ISO dates and day-first dates with 2- or 4-digit years
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter        rune
	TrimLeadingSpace bool
	// MaxIssues caps how many row issues are retained for reporting.
	MaxIssues int
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		MaxIssues:        50,
	}
}

// BaseParser provides common CSV reading functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent(component),
	}
}

// ParseContext holds state during a parsing operation
type ParseContext struct {
	Source  string
	Headers []string
	Columns *ColumnMap
	Stats   *ParseStats
}

// NewParseContext creates a new parsing context
func NewParseContext(source string, maxIssues int) *ParseContext {
	return &ParseContext{
		Source: source,
		Stats:  NewParseStats(maxIssues),
	}
}

// ReadRecords reads every non-blank record from r. Quoted fields may
// contain the delimiter. The first record is the header.
func (bp *BaseParser) ReadRecords(r io.Reader, parseCtx *ParseContext) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			bp.logger.WithError(err).WithField("source", parseCtx.Source).Warn("Failed to read CSV record")
			return nil, errors.ValidationError(errors.CodeInvalidValue, parseCtx.Source, "malformed csv", err).
				WithSuggestion("check that quoted fields are closed and the file is comma-delimited")
		}
		if isEmptyRecord(record) {
			continue
		}
		records = append(records, record)
	}

	if len(records) < 2 {
		bp.logger.WithFields(logger.Fields{
			"source": parseCtx.Source,
			"lines":  len(records),
		}).Warn("CSV has no data rows")
		return nil, errors.ValidationError(errors.CodeEmptyInput, parseCtx.Source, len(records), nil)
	}

	parseCtx.Headers = cleanHeaders(records[0])
	parseCtx.Stats.TotalRows = len(records) - 1
	bp.logger.WithFields(logger.Fields{
		"source":  parseCtx.Source,
		"headers": parseCtx.Headers,
		"rows":    parseCtx.Stats.TotalRows,
	}).Debug("Read CSV records")

	return records[1:], nil
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}
	return cleaned
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// field returns the trimmed cell at index, or "" when the column is absent
// or the row is short.
func field(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalRows      int
	RecordsKept    int
	RecordsDropped int
	UndatedRows    int
	Issues         *errors.RowIssueCollector
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(maxIssues int) *ParseStats {
	return &ParseStats{Issues: errors.NewRowIssueCollector(maxIssues)}
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d rows: %d kept, %d dropped, %d without a recognizable date",
		ps.TotalRows, ps.RecordsKept, ps.RecordsDropped, ps.UndatedRows)
}
