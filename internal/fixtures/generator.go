// Package fixtures generates reproducible bank statement and ledger CSV
// pairs with a known number of matching rows.
package fixtures

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
)

// Amounts of unmatched rows start far above the matched range so that no
// generated row falls within the amount tolerance of another.
var (
	unmatchedLedgerBase = decimal.NewFromInt(800000)
	unmatchedBankBase   = decimal.NewFromInt(900000)
)

// Generator produces one scenario per call to Generate.
type Generator struct {
	Flow       models.MovementType
	Count      int     // bank rows
	MatchRatio float64 // share of bank rows with a ledger counterpart
	Orphans    int     // ledger rows with no bank counterpart
	StartDate  time.Time
	EndDate    time.Time
	MinAmount  decimal.Decimal
	Seed       uint64
}

// DefaultGenerator returns a March 2024 income generator.
func DefaultGenerator() *Generator {
	return &Generator{
		Flow:       models.MovementIncome,
		Count:      100,
		MatchRatio: 0.8,
		Orphans:    5,
		StartDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		MinAmount:  decimal.NewFromInt(100),
		Seed:       1,
	}
}

// Scenario is a generated statement/ledger pair.
type Scenario struct {
	Flow      models.MovementType
	BankCSV   []byte
	LedgerCSV []byte

	BankRows   int
	LedgerRows int
	Matched    int // bank rows the default matching config pairs
}

// Validate checks the generator settings.
func (g *Generator) Validate() error {
	if !g.Flow.IsValid() {
		return errors.ValidationError(errors.CodeInvalidValue, "flow", g.Flow, nil)
	}
	if g.Count < 0 || g.Orphans < 0 {
		return errors.ValidationError(errors.CodeInvalidValue, "count", g.Count, nil)
	}
	if g.MatchRatio < 0 || g.MatchRatio > 1 {
		return errors.ValidationError(errors.CodeInvalidRange, "match ratio", g.MatchRatio, nil)
	}
	if g.EndDate.Before(g.StartDate) {
		return errors.ValidationError(errors.CodeInvalidRange, "dates", g.StartDate.Format(time.DateOnly)+".."+g.EndDate.Format(time.DateOnly), nil)
	}
	if !g.MinAmount.IsPositive() {
		return errors.ValidationError(errors.CodeInvalidAmount, "min amount", g.MinAmount.String(), nil)
	}
	return nil
}

type bankRow struct {
	date        time.Time
	description string
	reference   string
	amount      decimal.Decimal
}

type ledgerRow struct {
	id        string
	date      time.Time
	amount    decimal.Decimal
	reference string
	extra     [3]string
}

// Generate builds the scenario. The same settings always produce the same
// bytes.
func (g *Generator) Generate() (*Scenario, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))

	matchCount := int(float64(g.Count) * g.MatchRatio)
	days := int(g.EndDate.Sub(g.StartDate).Hours() / 24)

	var (
		bank   []bankRow
		ledger []ledgerRow
	)

	// Matched amounts are at least 0.51 apart, well outside the default
	// epsilon, so each bank row has exactly one candidate.
	for i := 0; i < matchCount; i++ {
		amount := g.MinAmount.Add(decimal.NewFromInt(int64(i))).Add(decimal.New(int64(rng.IntN(50)), -2))
		date := g.StartDate.AddDate(0, 0, rng.IntN(days+1))
		bankDate := date.AddDate(0, 0, rng.IntN(3))

		if g.Flow == models.MovementIncome {
			ref := fmt.Sprintf("PAGO-%05d", i+1)
			unit := fmt.Sprintf("%d%02d", 1+rng.IntN(9), 1+rng.IntN(12))
			ledger = append(ledger, ledgerRow{
				id: fmt.Sprintf("pay-%05d", i+1), date: date, amount: amount, reference: ref,
				extra: [3]string{unit, "ACC-" + unit, residentNames[rng.IntN(len(residentNames))]},
			})
			bank = append(bank, bankRow{date: bankDate, description: "Transferencia depto " + unit, reference: ref, amount: amount})
			continue
		}

		voucher := fmt.Sprintf("V-%05d", i+1)
		vendor := vendorNames[rng.IntN(len(vendorNames))]
		ledger = append(ledger, ledgerRow{
			id: fmt.Sprintf("exp-%05d", i+1), date: date, amount: amount, reference: voucher,
			extra: [3]string{voucher, fmt.Sprintf("F%06d", rng.IntN(1000000)), vendor},
		})
		bank = append(bank, bankRow{date: bankDate, description: "Pago " + vendor + " " + voucher, amount: amount})
	}

	for i := 0; i < g.Count-matchCount; i++ {
		amount := unmatchedBankBase.Add(decimal.NewFromInt(int64(i))).Add(decimal.New(int64(rng.IntN(100)), -2))
		date := g.StartDate.AddDate(0, 0, rng.IntN(days+1))
		row := bankRow{date: date, description: "Deposito sin identificar", amount: amount}
		if g.Flow == models.MovementIncome {
			row.reference = fmt.Sprintf("SIN-REF-%05d", i+1)
		} else {
			row.description = "Comision bancaria"
		}
		bank = append(bank, row)
	}

	for i := 0; i < g.Orphans; i++ {
		amount := unmatchedLedgerBase.Add(decimal.NewFromInt(int64(i)))
		date := g.StartDate.AddDate(0, 0, rng.IntN(days+1))
		row := ledgerRow{id: fmt.Sprintf("orphan-%05d", i+1), date: date, amount: amount}
		if g.Flow == models.MovementIncome {
			row.reference = fmt.Sprintf("ADEL-%05d", i+1)
		} else {
			row.reference = fmt.Sprintf("V-9%04d", i+1)
			row.extra[0] = row.reference
		}
		ledger = append(ledger, row)
	}

	rng.Shuffle(len(bank), func(i, j int) { bank[i], bank[j] = bank[j], bank[i] })

	bankCSV, err := g.writeBank(bank)
	if err != nil {
		return nil, err
	}
	ledgerCSV, err := g.writeLedger(ledger)
	if err != nil {
		return nil, err
	}

	return &Scenario{
		Flow:       g.Flow,
		BankCSV:    bankCSV,
		LedgerCSV:  ledgerCSV,
		BankRows:   len(bank),
		LedgerRows: len(ledger),
		Matched:    matchCount,
	}, nil
}

// Bank statements use the day-first dates and Spanish headers banks export.
func (g *Generator) writeBank(rows []bankRow) ([]byte, error) {
	header := []string{"Fecha", "Descripcion", "Referencia", "Abono"}
	if g.Flow == models.MovementExpense {
		header = []string{"Fecha", "Concepto", "Referencia", "Cargo"}
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	for _, r := range rows {
		records = append(records, []string{r.date.Format("02/01/2006"), r.description, r.reference, r.amount.StringFixed(2)})
	}
	return encode(records)
}

func (g *Generator) writeLedger(rows []ledgerRow) ([]byte, error) {
	header := []string{"id", "date", "amount", "reference", "unit", "account", "resident"}
	if g.Flow == models.MovementExpense {
		header = []string{"id", "date", "amount", "reference", "voucher", "folio", "vendor"}
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	for _, r := range rows {
		records = append(records, []string{r.id, r.date.Format(time.DateOnly), r.amount.StringFixed(2), r.reference, r.extra[0], r.extra[1], r.extra[2]})
	}
	return encode(records)
}

func encode(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, errors.InternalError("encode fixture csv", err)
	}
	return buf.Bytes(), nil
}

// WriteFiles writes <flow>_bank.csv and <flow>_ledger.csv into dir and
// returns their paths.
func (s *Scenario) WriteFiles(dir string) (bankPath, ledgerPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.InternalError("create fixture dir", err)
	}
	bankPath = filepath.Join(dir, string(s.Flow)+"_bank.csv")
	ledgerPath = filepath.Join(dir, string(s.Flow)+"_ledger.csv")
	if err := os.WriteFile(bankPath, s.BankCSV, 0o644); err != nil {
		return "", "", errors.InternalError("write bank fixture", err)
	}
	if err := os.WriteFile(ledgerPath, s.LedgerCSV, 0o644); err != nil {
		return "", "", errors.InternalError("write ledger fixture", err)
	}
	return bankPath, ledgerPath, nil
}

var residentNames = []string{"Ana Rojas", "Luis Perez", "María Núñez", "Jorge Soto", "Carla Díaz", "Pedro Muñoz"}

var vendorNames = []string{"Aseo Total", "Ascensores Sur", "Jardines Norte", "Seguridad Andes", "Electro Servicios"}
