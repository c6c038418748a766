// Package reporter renders reconciliation sessions for people and programs.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: the session with its movements for programmatic consumption
//   - CSV: one row per movement for spreadsheet applications
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.ConfigForFormat(reporter.FormatCSV))
//	err = generator.GenerateReport(session, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseFormat resolves a format name, case-insensitively.
func ParseFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %q (expected console, json or csv)", s)
	}
	return f, nil
}

// ContentType returns the HTTP media type of the format.
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeMatched          bool `json:"include_matched"`
	IncludePending          bool `json:"include_pending"`
	IncludeIgnored          bool `json:"include_ignored"`
	IncludeUnmatchedLedger  bool `json:"include_unmatched_ledger"`
	IncludeDuplicateWarning bool `json:"include_duplicate_warning"`

	// MaxListItems caps each console list; 0 prints everything.
	MaxListItems int  `json:"max_list_items"`
	SortByAmount bool `json:"sort_by_amount"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                  FormatConsole,
		IncludeMatched:          true,
		IncludePending:          true,
		IncludeIgnored:          true,
		IncludeUnmatchedLedger:  true,
		IncludeDuplicateWarning: true,
		MaxListItems:            10,
		CSVDelimiter:            ',',
		CSVHeaders:              true,
	}
}

// ConfigForFormat returns the default configuration tuned for format.
func ConfigForFormat(format OutputFormat) *ReportConfig {
	config := DefaultReportConfig()
	config.Format = format
	if format != FormatConsole {
		config.MaxListItems = 0
	}
	return config
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	if c.Format == FormatCSV && c.CSVDelimiter == 0 {
		return fmt.Errorf("csv delimiter is required")
	}
	return nil
}

// ReportGenerator renders sessions in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport writes a report of session. Movement sections are only
// rendered when the session is hydrated.
func (rg *ReportGenerator) GenerateReport(session *models.Session, writer io.Writer) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(session, writer)
	case FormatJSON:
		return rg.generateJSONReport(session, writer)
	case FormatCSV:
		return rg.generateCSVReport(session, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// movementView pairs a bank row with the internal movement it holds.
type movementView struct {
	bank     *models.BankMovement
	internal *models.InternalMovement
}

func (rg *ReportGenerator) generateConsoleReport(session *models.Session, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Session:  %s (%s)\n", session.Name, displayID(session.ID))
	fmt.Fprintf(writer, "Type:     %s\n", session.Type)
	fmt.Fprintf(writer, "Status:   %s (v%d)\n", displayStatus(session.Status), session.Version)
	fmt.Fprintf(writer, "Period:   %s\n", session.DateRange.String())
	if session.Traceability.SnapshotHash != "" {
		fmt.Fprintf(writer, "Snapshot: %s\n", session.Traceability.SnapshotHash)
	}
	if session.CSVSource != nil {
		fmt.Fprintf(writer, "Source:   %s (%d bytes)\n", session.CSVSource.FileName, session.CSVSource.Size)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(session.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== FINANCIAL SUMMARY ===\n")
	rg.printFinancialSummary(session.Summary, writer)

	if !session.Hydrated() {
		return nil
	}

	pending, matched, ignored := rg.partition(session)

	if rg.config.IncludeMatched && len(matched) > 0 {
		fmt.Fprintf(writer, "\n=== MATCHED MOVEMENTS ===\n")
		rg.printMatched(matched, writer)
	}
	if rg.config.IncludePending && len(pending) > 0 {
		fmt.Fprintf(writer, "\n=== PENDING BANK MOVEMENTS ===\n")
		rg.printBankList(pending, writer)
	}
	if rg.config.IncludeIgnored && len(ignored) > 0 {
		fmt.Fprintf(writer, "\n=== IGNORED BANK MOVEMENTS ===\n")
		rg.printBankList(ignored, writer)
	}
	if rg.config.IncludeUnmatchedLedger {
		if unmatched := unmatchedInternal(session); len(unmatched) > 0 {
			fmt.Fprintf(writer, "\n=== UNMATCHED INTERNAL MOVEMENTS ===\n")
			rg.printInternalList(unmatched, writer)
		}
	}
	if rg.config.IncludeDuplicateWarning {
		if groups := matcher.DetectDuplicates(session.BankMovements); len(groups) > 0 {
			fmt.Fprintf(writer, "\n=== POSSIBLE DUPLICATE BANK ROWS ===\n")
			for _, group := range groups {
				fmt.Fprintf(writer, "  - %s: %s\n", group.GroupID, group.Reason)
			}
		}
	}
	return nil
}

func (rg *ReportGenerator) generateJSONReport(session *models.Session, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterSessionForOutput(session))
}

func (rg *ReportGenerator) generateCSVReport(session *models.Session, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Kind",
			"ID",
			"Date",
			"Amount",
			"Description",
			"Reference",
			"Status",
			"Matched_Internal_ID",
			"Confidence",
			"Internal_Label",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	internalByID := indexInternal(session.InternalMovements)
	for _, m := range session.BankMovements {
		if !rg.includeStatus(m.Status) {
			continue
		}
		var matchedID, confidence, label string
		if m.MatchedInternalID != nil {
			matchedID = *m.MatchedInternalID
			if internal, ok := internalByID[matchedID]; ok {
				label = internal.Label()
			}
		}
		if m.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *m.Confidence)
		}
		record := []string{
			"bank",
			m.ID,
			models.FormatDate(m.Date),
			m.Amount.StringFixed(2),
			m.Description,
			m.Reference,
			string(m.Status),
			matchedID,
			confidence,
			label,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write bank movement record: %w", err)
		}
	}

	if rg.config.IncludeUnmatchedLedger {
		for _, m := range unmatchedInternal(session) {
			record := []string{
				"internal",
				m.ID,
				models.FormatDate(m.MovementDate),
				m.Amount.StringFixed(2),
				m.Description,
				m.ReferenceText,
				"unmatched",
				"",
				"",
				m.Label(),
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write internal movement record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// GenerateSessionList writes one line (console), object (json) or row
// (csv) per session. Only metadata is rendered.
func (rg *ReportGenerator) GenerateSessionList(sessions []*models.Session, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		items := make([]*models.Session, len(sessions))
		for i, s := range sessions {
			items[i] = s.Metadata()
		}
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(items)

	case FormatCSV:
		csvWriter := csv.NewWriter(writer)
		csvWriter.Comma = rg.config.CSVDelimiter
		if rg.config.CSVHeaders {
			if err := csvWriter.Write([]string{"ID", "Name", "Type", "Status", "Version", "Bank", "Matched", "Unmatched_Difference", "Updated_At", "Created_By"}); err != nil {
				return fmt.Errorf("failed to write CSV headers: %w", err)
			}
		}
		for _, s := range sessions {
			record := []string{
				s.ID,
				s.Name,
				string(s.Type),
				string(s.Status),
				fmt.Sprintf("%d", s.Version),
				fmt.Sprintf("%d", s.Traceability.BankMovementsCount),
				fmt.Sprintf("%d", s.Traceability.MatchedMovementsCount),
				s.Summary.UnmatchedDifference.StringFixed(2),
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
				s.CreatedBy.ID,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write session record: %w", err)
			}
		}
		csvWriter.Flush()
		return csvWriter.Error()

	case FormatConsole:
		if len(sessions) == 0 {
			fmt.Fprintf(writer, "No sessions found\n")
			return nil
		}
		for i, s := range sessions {
			fmt.Fprintf(writer, "  %d. %s  %-7s %-9s v%-3d %-40s matched %d/%d  diff %s  updated %s\n",
				i+1,
				s.ID,
				s.Type,
				displayStatus(s.Status),
				s.Version,
				truncate(s.Name, 40),
				s.Traceability.MatchedMovementsCount,
				s.Traceability.BankMovementsCount,
				s.Summary.UnmatchedDifference.StringFixed(2),
				s.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil

	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(summary models.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Bank Movements:\n")
	fmt.Fprintf(writer, "  Total:    %d\n", summary.BankCount)
	fmt.Fprintf(writer, "  Matched:  %d (%.1f%%)\n",
		summary.MatchedCount, calculatePercentage(summary.MatchedCount, summary.BankCount))
	fmt.Fprintf(writer, "  Pending:  %d (%.1f%%)\n",
		summary.PendingCount, calculatePercentage(summary.PendingCount, summary.BankCount))
	fmt.Fprintf(writer, "  Ignored:  %d (%.1f%%)\n",
		summary.IgnoredCount, calculatePercentage(summary.IgnoredCount, summary.BankCount))
	fmt.Fprintf(writer, "\nInternal Movements: %d\n", summary.InternalCount)
}

func (rg *ReportGenerator) printFinancialSummary(summary models.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Bank Total:           %s\n", summary.BankTotal.StringFixed(2))
	fmt.Fprintf(writer, "  Matched:            %s\n", summary.BankMatched.StringFixed(2))
	fmt.Fprintf(writer, "  Pending:            %s\n", summary.BankPending.StringFixed(2))
	fmt.Fprintf(writer, "  Ignored:            %s\n", summary.BankIgnored.StringFixed(2))
	fmt.Fprintf(writer, "Internal Total:       %s\n", summary.InternalTotal.StringFixed(2))
	fmt.Fprintf(writer, "Internal Matched:     %s\n", summary.InternalMatched.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched Difference: %s\n", summary.UnmatchedDifference.StringFixed(2))

	if !summary.UnmatchedDifference.IsZero() && summary.BankTotal.IsPositive() {
		pct := summary.UnmatchedDifference.Abs().Div(summary.BankTotal).Mul(decimal.NewFromInt(100))
		fmt.Fprintf(writer, "Difference Percentage: %s%%\n", pct.StringFixed(2))
	}
}

func (rg *ReportGenerator) printMatched(views []movementView, writer io.Writer) {
	for i, v := range views {
		if rg.truncated(i, len(views), writer) {
			break
		}
		label := "(not in ledger)"
		if v.internal != nil {
			label = v.internal.Label()
		}
		confidence := 0.0
		if v.bank.Confidence != nil {
			confidence = *v.bank.Confidence
		}
		fmt.Fprintf(writer, "  %d. %s  %s  %s  %s -> %s [%s, %.2f]\n",
			i+1,
			v.bank.ID,
			displayDate(v.bank.Date),
			v.bank.Amount.StringFixed(2),
			describe(v.bank),
			label,
			v.bank.Status,
			confidence)
	}
}

func (rg *ReportGenerator) printBankList(movements []*models.BankMovement, writer io.Writer) {
	if rg.config.SortByAmount {
		sort.SliceStable(movements, func(i, j int) bool {
			return movements[i].Amount.GreaterThan(movements[j].Amount)
		})
	}
	fmt.Fprintf(writer, "Total: %d\n", len(movements))
	for i, m := range movements {
		if rg.truncated(i, len(movements), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s  %s  %s  %s\n",
			i+1, m.ID, displayDate(m.Date), m.Amount.StringFixed(2), describe(m))
	}
}

func (rg *ReportGenerator) printInternalList(movements []*models.InternalMovement, writer io.Writer) {
	if rg.config.SortByAmount {
		sort.SliceStable(movements, func(i, j int) bool {
			return movements[i].Amount.GreaterThan(movements[j].Amount)
		})
	}
	fmt.Fprintf(writer, "Total: %d\n", len(movements))
	for i, m := range movements {
		if rg.truncated(i, len(movements), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s  %s  %s  %s\n",
			i+1, m.ID, displayDate(m.MovementDate), m.Amount.StringFixed(2), m.Label())
	}
}

// truncated prints the overflow line and reports true once i reaches the
// configured list limit.
func (rg *ReportGenerator) truncated(i, total int, writer io.Writer) bool {
	limit := rg.config.MaxListItems
	if limit <= 0 || i < limit {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-limit)
	return true
}

func (rg *ReportGenerator) partition(session *models.Session) (pending []*models.BankMovement, matched []movementView, ignored []*models.BankMovement) {
	internalByID := indexInternal(session.InternalMovements)
	for _, m := range session.BankMovements {
		switch {
		case m.Status.IsAssigned():
			view := movementView{bank: m}
			if m.MatchedInternalID != nil {
				view.internal = internalByID[*m.MatchedInternalID]
			}
			matched = append(matched, view)
		case m.Status == models.StatusIgnored:
			ignored = append(ignored, m)
		default:
			pending = append(pending, m)
		}
	}
	return pending, matched, ignored
}

func (rg *ReportGenerator) includeStatus(status models.MovementStatus) bool {
	switch {
	case status.IsAssigned():
		return rg.config.IncludeMatched
	case status == models.StatusIgnored:
		return rg.config.IncludeIgnored
	default:
		return rg.config.IncludePending
	}
}

func (rg *ReportGenerator) filterSessionForOutput(session *models.Session) map[string]interface{} {
	output := map[string]interface{}{
		"session": session.Metadata(),
		"summary": session.Summary,
	}
	if !session.Hydrated() {
		return output
	}

	bank := make([]*models.BankMovement, 0, len(session.BankMovements))
	for _, m := range session.BankMovements {
		if rg.includeStatus(m.Status) {
			bank = append(bank, m)
		}
	}
	output["bankMovements"] = bank
	output["internalMovements"] = session.InternalMovements

	if rg.config.IncludeUnmatchedLedger {
		ids := make([]string, 0)
		for _, m := range unmatchedInternal(session) {
			ids = append(ids, m.ID)
		}
		output["unmatchedInternalIds"] = ids
	}
	if rg.config.IncludeDuplicateWarning {
		groups := make([]map[string]interface{}, 0)
		for _, g := range matcher.DetectDuplicates(session.BankMovements) {
			ids := make([]string, len(g.Movements))
			for i, m := range g.Movements {
				ids[i] = m.ID
			}
			groups = append(groups, map[string]interface{}{
				"groupId":     g.GroupID,
				"movementIds": ids,
				"reason":      g.Reason,
			})
		}
		output["possibleDuplicates"] = groups
	}
	return output
}

// Helper functions

func indexInternal(movements []*models.InternalMovement) map[string]*models.InternalMovement {
	out := make(map[string]*models.InternalMovement, len(movements))
	for _, m := range movements {
		out[m.ID] = m
	}
	return out
}

// unmatchedInternal returns the ledger movements no bank row holds.
func unmatchedInternal(session *models.Session) []*models.InternalMovement {
	held := make(map[string]bool)
	for _, m := range session.BankMovements {
		if m.HasAssignment() {
			held[*m.MatchedInternalID] = true
		}
	}
	var out []*models.InternalMovement
	for _, m := range session.InternalMovements {
		if !held[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func describe(m *models.BankMovement) string {
	switch {
	case m.Description != "" && m.Reference != "":
		return fmt.Sprintf("%s (%s)", m.Description, m.Reference)
	case m.Reference != "":
		return m.Reference
	default:
		return m.Description
	}
}

func displayDate(date *time.Time) string {
	if s := models.FormatDate(date); s != "" {
		return s
	}
	return "(no date)"
}

func displayStatus(status models.SessionStatus) string {
	if status == "" {
		return "unsaved"
	}
	return string(status)
}

func displayID(id string) string {
	if id == "" {
		return "not saved"
	}
	return id
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
