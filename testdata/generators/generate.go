// Command generate writes seeded bank statement and ledger CSV pairs for
// manual runs of the reconciler.
//
//	go run ./testdata/generators --type expense --count 500 --output-dir ./generated
//	reconciler ledger import --type expense --file ./generated/expense_ledger.csv
//	reconciler reconcile --type expense --bank-file ./generated/expense_bank.csv
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang-bank-reconciliation/internal/fixtures"
	"golang-bank-reconciliation/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

func main() {
	defaults := fixtures.DefaultGenerator()

	var (
		flow       = pflag.StringP("type", "t", "all", "movement type: income, expense or all")
		count      = pflag.Int("count", defaults.Count, "bank rows per statement")
		matchRatio = pflag.Float64("match-ratio", defaults.MatchRatio, "share of bank rows with a ledger counterpart (0.0-1.0)")
		orphans    = pflag.Int("orphans", defaults.Orphans, "ledger rows with no bank counterpart")
		startDate  = pflag.String("start-date", defaults.StartDate.Format(time.DateOnly), "first movement date (YYYY-MM-DD)")
		endDate    = pflag.String("end-date", defaults.EndDate.Format(time.DateOnly), "last movement date (YYYY-MM-DD)")
		minAmount  = pflag.String("min-amount", defaults.MinAmount.String(), "smallest matched amount")
		seed       = pflag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed for reproducible output")
		outputDir  = pflag.String("output-dir", "generated", "output directory")
	)
	pflag.Parse()

	start, err := time.Parse(time.DateOnly, *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end, err := time.Parse(time.DateOnly, *endDate)
	if err != nil {
		log.Fatalf("Invalid end date: %v", err)
	}
	amount, err := decimal.NewFromString(*minAmount)
	if err != nil {
		log.Fatalf("Invalid min amount: %v", err)
	}

	flows := []models.MovementType{models.MovementIncome, models.MovementExpense}
	if *flow != "all" {
		parsed, err := models.ParseMovementType(*flow)
		if err != nil {
			log.Fatalf("Invalid type: %v", err)
		}
		flows = []models.MovementType{parsed}
	}

	for _, f := range flows {
		g := &fixtures.Generator{
			Flow:       f,
			Count:      *count,
			MatchRatio: *matchRatio,
			Orphans:    *orphans,
			StartDate:  start,
			EndDate:    end,
			MinAmount:  amount,
			Seed:       *seed,
		}
		scenario, err := g.Generate()
		if err != nil {
			log.Fatalf("Failed to generate %s scenario: %v", f, err)
		}
		bankPath, ledgerPath, err := scenario.WriteFiles(*outputDir)
		if err != nil {
			log.Fatalf("Failed to write %s scenario: %v", f, err)
		}

		fmt.Fprintf(os.Stdout, "%s: %d bank rows in %s, %d ledger rows in %s, %d expected matches\n",
			f, scenario.BankRows, bankPath, scenario.LedgerRows, ledgerPath, scenario.Matched)
	}
	fmt.Printf("Seed used: %d\n", *seed)
}
