package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"golang-bank-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

func testDate(s string) *time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func createTestSession() *models.Session {
	matched := models.NewBankMovement("b1", testDate("2024-03-10"), decimal.RequireFromString("1500"), "Pago depto 101", "PAGO-778")
	matched.Assign(models.StatusMatched, "p1", 1)
	pending := models.NewBankMovement("b2", testDate("2024-03-12"), decimal.RequireFromString("1250"), "Transferencia", "")
	ignored := models.NewBankMovement("b3", nil, decimal.RequireFromString("10"), "Comision", "")
	ignored.Reset(models.StatusIgnored)

	return &models.Session{
		ID:      "s-1",
		Name:    "March income",
		Type:    models.MovementIncome,
		Status:  models.SessionCompleted,
		Version: 3,
		Summary: models.Summary{
			BankTotal:           decimal.RequireFromString("2760"),
			BankMatched:         decimal.RequireFromString("1500"),
			BankPending:         decimal.RequireFromString("1250"),
			BankIgnored:         decimal.RequireFromString("10"),
			InternalTotal:       decimal.RequireFromString("1800"),
			InternalMatched:     decimal.RequireFromString("1500"),
			UnmatchedDifference: decimal.RequireFromString("1260"),
			BankCount:           3,
			InternalCount:       2,
			MatchedCount:        1,
			PendingCount:        1,
			IgnoredCount:        1,
		},
		DateRange: models.DateRange{From: "2024-03-01", To: "2024-03-31"},
		Traceability: models.Traceability{
			SnapshotHash:          "0123456789abcdef",
			BankMovementsCount:    3,
			MatchedMovementsCount: 1,
			LastAction:            models.ActionComplete,
		},
		CreatedBy: models.Actor{ID: "user-1"},
		UpdatedAt: time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC),
		BankMovements: []*models.BankMovement{
			matched, pending, ignored,
		},
		InternalMovements: []*models.InternalMovement{
			{ID: "p1", Kind: models.MovementIncome, Amount: decimal.RequireFromString("1500"), ReferenceText: "pago-778",
				Payment: &models.PaymentDetails{UnitNumber: "101", ResidentName: "Ana"}},
			{ID: "p2", Kind: models.MovementIncome, Amount: decimal.RequireFromString("300"), ReferenceText: "PAGO-900"},
		},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "csv config",
			config:      ConfigForFormat(FormatCSV),
			expectError: false,
		},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "invalid"},
			expectError: true,
		},
		{
			name:        "negative list limit",
			config:      &ReportConfig{Format: FormatConsole, MaxListItems: -1},
			expectError: true,
		},
		{
			name:        "csv without delimiter",
			config:      &ReportConfig{Format: FormatCSV},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"console", FormatConsole, false},
		{" JSON ", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestConsoleOutputSections(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestSession(), &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}
	output := buf.String()

	expected := []string{
		"RECONCILIATION REPORT",
		"Session:  March income (s-1)",
		"Status:   completed (v3)",
		"Period:   2024-03-01 to 2024-03-31",
		"Snapshot: 0123456789abcdef",
		"=== SUMMARY ===",
		"Matched:  1 (33.3%)",
		"=== FINANCIAL SUMMARY ===",
		"Unmatched Difference: 1260.00",
		"=== MATCHED MOVEMENTS ===",
		"PAGO-778",
		"=== PENDING BANK MOVEMENTS ===",
		"=== IGNORED BANK MOVEMENTS ===",
		"(no date)",
		"=== UNMATCHED INTERNAL MOVEMENTS ===",
		"p2",
	}
	for _, section := range expected {
		if !strings.Contains(output, section) {
			t.Errorf("expected console output to contain %q\n%s", section, output)
		}
	}
	if strings.Contains(output, "POSSIBLE DUPLICATE") {
		t.Errorf("no duplicate section expected")
	}
}

func TestConsoleOutputMetadataOnly(t *testing.T) {
	session := createTestSession().Metadata()
	generator, _ := NewReportGenerator(nil)

	var buf bytes.Buffer
	if err := generator.GenerateReport(session, &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}
	if strings.Contains(buf.String(), "MATCHED MOVEMENTS") {
		t.Errorf("movement sections must not render for unhydrated sessions")
	}
}

func TestConsoleOutputDuplicates(t *testing.T) {
	session := createTestSession()
	dup := models.NewBankMovement("b4", testDate("2024-03-12"), decimal.RequireFromString("1250"), "TRANSFERENCIA", "")
	session.BankMovements = append(session.BankMovements, dup)

	generator, _ := NewReportGenerator(nil)
	var buf bytes.Buffer
	if err := generator.GenerateReport(session, &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}
	if !strings.Contains(buf.String(), "DUP_b2") {
		t.Errorf("expected duplicate group DUP_b2 in output:\n%s", buf.String())
	}
}

func TestConsoleListTruncation(t *testing.T) {
	session := createTestSession()
	for i := 0; i < 5; i++ {
		session.BankMovements = append(session.BankMovements,
			models.NewBankMovement("x"+string(rune('a'+i)), testDate("2024-03-01"), decimal.NewFromInt(int64(i+1)), "row", ""))
	}

	config := DefaultReportConfig()
	config.MaxListItems = 2
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(session, &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}
	if !strings.Contains(buf.String(), "... and 4 more") {
		t.Errorf("expected truncation line in output:\n%s", buf.String())
	}
}

func TestJSONReport(t *testing.T) {
	generator, _ := NewReportGenerator(ConfigForFormat(FormatJSON))

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestSession(), &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}

	var decoded struct {
		Session struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"session"`
		Summary struct {
			UnmatchedDifference string `json:"unmatchedDifference"`
		} `json:"summary"`
		BankMovements        []map[string]interface{} `json:"bankMovements"`
		UnmatchedInternalIDs []string                 `json:"unmatchedInternalIds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if decoded.Session.ID != "s-1" || decoded.Session.Status != "completed" {
		t.Errorf("unexpected session block: %+v", decoded.Session)
	}
	if decoded.Summary.UnmatchedDifference != "1260" {
		t.Errorf("unexpected difference %q", decoded.Summary.UnmatchedDifference)
	}
	if len(decoded.BankMovements) != 3 {
		t.Errorf("expected 3 bank movements, got %d", len(decoded.BankMovements))
	}
	if len(decoded.UnmatchedInternalIDs) != 1 || decoded.UnmatchedInternalIDs[0] != "p2" {
		t.Errorf("unexpected unmatched ids %v", decoded.UnmatchedInternalIDs)
	}
}

func TestCSVFormatting(t *testing.T) {
	config := ConfigForFormat(FormatCSV)
	config.IncludeIgnored = false
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestSession(), &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	// header, matched, pending, unmatched internal
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d: %v", len(records), records)
	}
	if records[0][0] != "Kind" || len(records[0]) != 10 {
		t.Errorf("unexpected header %v", records[0])
	}

	matched := records[1]
	if matched[1] != "b1" || matched[6] != "matched" || matched[7] != "p1" || matched[8] != "1.00" {
		t.Errorf("unexpected matched record %v", matched)
	}
	if !strings.Contains(matched[9], "101") {
		t.Errorf("expected internal label with the unit, got %q", matched[9])
	}
	if records[3][0] != "internal" || records[3][1] != "p2" {
		t.Errorf("unexpected internal record %v", records[3])
	}
}

func TestGenerateSessionList(t *testing.T) {
	sessions := []*models.Session{createTestSession()}

	tests := []struct {
		format   OutputFormat
		contains []string
	}{
		{FormatConsole, []string{"1. s-1", "completed", "matched 1/3", "diff 1260.00"}},
		{FormatCSV, []string{"ID,Name,Type", "s-1,March income,income,completed,3,3,1,1260.00"}},
		{FormatJSON, []string{`"id": "s-1"`, `"name": "March income"`}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			generator, _ := NewReportGenerator(ConfigForFormat(tt.format))
			var buf bytes.Buffer
			if err := generator.GenerateSessionList(sessions, &buf); err != nil {
				t.Fatalf("failed to render list: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("expected %q in output:\n%s", want, buf.String())
				}
			}
			if strings.Contains(buf.String(), `"bankMovements":`) {
				t.Errorf("session lists must not carry movement arrays")
			}
		})
	}
}

func TestGenerateSessionListEmpty(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	var buf bytes.Buffer
	if err := generator.GenerateSessionList(nil, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "No sessions found") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

type failingWriter struct {
	failures int
	buf      bytes.Buffer
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.failures > 0 {
		w.failures--
		return 0, &writeError{}
	}
	return w.buf.Write(p)
}

type writeError struct{}

func (*writeError) Error() string { return "write failed" }

func TestSafeReportGenerator_FormatFallback(t *testing.T) {
	generator, err := NewSafeReportGenerator(ConfigForFormat(FormatJSON), nil)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	w := &failingWriter{failures: 1}
	if err := generator.GenerateReportSafely(createTestSession(), w); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	output := w.buf.String()
	if !strings.Contains(output, "NOTE: Report generated in console format") {
		t.Errorf("expected fallback notice, got:\n%s", output)
	}
	if !strings.Contains(output, "RECONCILIATION REPORT") {
		t.Errorf("expected console report after fallback")
	}
}

func TestSafeReportGenerator_InvalidConfig(t *testing.T) {
	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, nil); err == nil {
		t.Errorf("expected configuration error")
	}
}

func TestGenerateBackupPath(t *testing.T) {
	if got := generateBackupPath("/tmp/out/report.csv"); got != "/tmp/out/report_backup.csv" {
		t.Errorf("unexpected backup path %q", got)
	}
}
