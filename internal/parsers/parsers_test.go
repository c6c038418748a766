package parsers

import (
	"strings"
	"testing"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
)

func testOptions() *NormalizerOptions {
	opts := DefaultNormalizerOptions()
	opts.IDGenerator = SequentialIDs("b")
	return opts
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input       string
		expected    string
		expectError bool
	}{
		{"1500.00", "1500", false},
		{"1,500.00", "1500", false},
		{"1.500,00", "1500", false},
		{"12,50", "12.5", false},
		{"1,500", "1500", false},
		{"1.500.000", "1500000", false},
		{"$ -800", "800", false},
		{"(250.75)", "250.75", false},
		{"MXN 1 234,56", "1234.56", false},
		{"0", "0", false},
		{"", "", true},
		{"n/a", "", true},
		{"..", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2024-03-10", "2024-03-10"},
		{"2024-03-10T15:04:05Z", "2024-03-10"},
		{"2024/03/10", "2024-03-10"},
		{"10/03/2024", "2024-03-10"},
		{"10-03-24", "2024-03-10"},
		{"1.3.2024", "2024-03-01"},
		{"Mar 10, 2024", "2024-03-10"},
		{"31/02/2024", ""},
		{"13/13/2024", ""},
		{"ayer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := models.FormatDate(ParseDate(tt.input))
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestResolveColumns(t *testing.T) {
	cm := ResolveColumns([]string{"Fecha Operación", "Descripción", "Referencia", "Cargo", "Abono", "Saldo"})

	checks := map[ColumnRole]int{
		RoleDate:        0,
		RoleDescription: 1,
		RoleReference:   2,
		RoleDebit:       3,
		RoleCredit:      4,
		RoleAmount:      -1,
	}
	for role, expected := range checks {
		if got := cm.Index(role); got != expected {
			t.Errorf("role %s: expected column %d, got %d", role, expected, got)
		}
	}

	if role, _ := cm.AmountColumn(models.MovementIncome); role != RoleCredit {
		t.Errorf("income should prefer credit column, got %s", role)
	}
	if role, _ := cm.AmountColumn(models.MovementExpense); role != RoleDebit {
		t.Errorf("expense should prefer debit column, got %s", role)
	}

	single := ResolveColumns([]string{"date", "concepto", "importe"})
	if role, ok := single.AmountColumn(models.MovementIncome); !ok || role != RoleAmount {
		t.Errorf("expected fallback to amount column, got %s", role)
	}
	if _, ok := ResolveColumns([]string{"fecha", "saldo"}).AmountColumn(models.MovementExpense); ok {
		t.Error("expected no amount column")
	}
}

func TestParseBankCSV_SingleLineIsValidationError(t *testing.T) {
	movements, _, err := ParseBankCSV("fecha,descripcion,monto", models.MovementIncome, testOptions())
	if err == nil {
		t.Fatal("expected error for header-only input")
	}
	if !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if len(movements) != 0 {
		t.Errorf("expected no movements, got %d", len(movements))
	}

	if _, _, err := ParseBankCSV("\n\n  \n", models.MovementIncome, testOptions()); !errors.IsValidation(err) {
		t.Errorf("expected validation error for blank input, got %v", err)
	}
}

func TestParseBankCSV_IncomeWithQuotedFields(t *testing.T) {
	text := strings.Join([]string{
		`Fecha,Descripción,Referencia,Cargo,Abono`,
		`10/03/2024,"Pago depto 101, marzo",PAGO-778,,"1,500.00"`,
		`11/03/2024,Comisión bancaria,,35.00,`,
		``,
		`fecha rara,Transferencia,TRF-1,,200`,
	}, "\n")

	movements, stats, err := ParseBankCSV(text, models.MovementIncome, testOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(movements) != 2 {
		t.Fatalf("expected 2 income movements, got %d", len(movements))
	}
	first := movements[0]
	if first.ID != "b-1" || first.Description != "Pago depto 101, marzo" || first.Reference != "PAGO-778" {
		t.Errorf("unexpected first movement: %v", first)
	}
	if !first.Amount.Equal(decimal.RequireFromString("1500")) {
		t.Errorf("expected 1500, got %s", first.Amount)
	}
	if models.FormatDate(first.Date) != "2024-03-10" {
		t.Errorf("expected 2024-03-10, got %s", models.FormatDate(first.Date))
	}
	if first.Status != models.StatusPending {
		t.Errorf("expected pending status, got %s", first.Status)
	}

	if movements[1].Date != nil {
		t.Error("expected unparseable date to become nil")
	}
	if stats.TotalRows != 3 || stats.RecordsKept != 2 || stats.RecordsDropped != 1 || stats.UndatedRows != 1 {
		t.Errorf("unexpected stats: %s", stats)
	}
	if stats.Issues.Total() != 2 {
		t.Errorf("expected 2 row issues, got %d", stats.Issues.Total())
	}
}

func TestParseBankCSV_ExpenseUsesDebitColumn(t *testing.T) {
	text := "fecha,concepto,cargo,abono\n2024-03-10,Proveedor limpieza,800,\n2024-03-11,Depósito,,900\n"

	movements, _, err := ParseBankCSV(text, models.MovementExpense, testOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected 1 expense movement, got %d", len(movements))
	}
	if !movements[0].Amount.Equal(decimal.NewFromInt(800)) || movements[0].Reference != "" {
		t.Errorf("unexpected movement: %v", movements[0])
	}
}

func TestParseBankCSV_ValorAmountHeader(t *testing.T) {
	for _, flow := range []models.MovementType{models.MovementIncome, models.MovementExpense} {
		t.Run(string(flow), func(t *testing.T) {
			movements, _, err := ParseBankCSV("Fecha,Descripcion,Valor\n10/03/2024,Pago,800.00\n", flow, testOptions())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(movements) != 1 || !movements[0].Amount.Equal(decimal.NewFromInt(800)) {
				t.Fatalf("expected one 800.00 movement, got %v", movements)
			}
		})
	}

	if got := ResolveColumns([]string{"Fecha", "Valor Cargo", "Valor"}).Index(RoleAmount); got != 2 {
		t.Errorf("a debit header must not be claimed as amount, got column %d", got)
	}
}

func TestParseBankCSV_SignedAmountColumn(t *testing.T) {
	text := "date,description,amount\n2024-03-10,refund,-120.50\n2024-03-11,zero,0.00\n"

	movements, stats, err := ParseBankCSV(text, models.MovementExpense, testOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(movements) != 1 || !movements[0].Amount.Equal(decimal.RequireFromString("120.5")) {
		t.Fatalf("expected a single 120.50 magnitude, got %v", movements)
	}
	if stats.RecordsDropped != 1 {
		t.Errorf("expected zero-amount row dropped, got %d", stats.RecordsDropped)
	}
}

func TestParseBankCSV_MissingAmountColumn(t *testing.T) {
	_, _, err := ParseBankCSV("fecha,saldo\n2024-03-10,100\n", models.MovementIncome, testOptions())
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Code != errors.CodeMissingColumn {
		t.Errorf("expected missing column error, got %v", err)
	}
}

func TestParseLedgerCSV(t *testing.T) {
	payments := "id,date,amount,reference,unit,resident\n" +
		"p-1,2024-03-09,1500.00,pago-778,101,Ana\n" +
		",2024-03-09,10,x,1,y\n" +
		"p-2,,200,pago-779,102,Luis\n"

	movements, stats, err := ParseLedgerCSV(strings.NewReader(payments), models.MovementIncome, "payments.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(movements) != 2 || stats.RecordsDropped != 1 {
		t.Fatalf("expected 2 payments and 1 dropped row, got %d/%d", len(movements), stats.RecordsDropped)
	}
	p := movements[0]
	if p.ReferenceText != "pago-778" || p.Payment == nil || p.Payment.UnitNumber != "101" || p.Kind != models.MovementIncome {
		t.Errorf("unexpected payment: %+v", p)
	}
	if movements[1].MovementDate != nil {
		t.Error("expected nil date for empty cell")
	}

	expenses := "ID,Fecha,Monto,Folio,Proveedor\ne-1,12/03/2024,800,F-10,Limpiezas SA\n"
	movements, _, err = ParseLedgerCSV(strings.NewReader(expenses), models.MovementExpense, "expenses.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(movements) != 1 || movements[0].Expense == nil || movements[0].Expense.Folio != "F-10" {
		t.Fatalf("unexpected expenses: %+v", movements)
	}
	if models.FormatDate(movements[0].MovementDate) != "2024-03-12" {
		t.Errorf("expected day-first date, got %s", models.FormatDate(movements[0].MovementDate))
	}

	if _, _, err := ParseLedgerCSV(strings.NewReader("date,amount\n2024-01-01,1\n"), models.MovementIncome, "x"); !errors.IsValidation(err) {
		t.Errorf("expected validation error for missing id column, got %v", err)
	}
}
