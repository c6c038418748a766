package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	ledgerType string
	ledgerFile string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the internal ledger used as the matching source",
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import recorded payments or expenses from CSV",
	Long: `Import reads recorded payments (--type income) or vendor expenses
(--type expense) into the tenant's internal ledger. Rows with an id that is
already present replace the stored movement.

Income columns:  id,date,amount,reference,description,unit,account,resident
Expense columns: id,date,amount,reference,description,voucher,folio,vendor

Example:
  reconciler ledger import --type income --file payments.csv`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseFlow(ledgerType); err != nil {
			return err
		}
		return validateFileExists(ledgerFile, "ledger file")
	},
	RunE: runLedgerImport,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerImportCmd)

	ledgerImportCmd.Flags().StringVarP(&ledgerType, "type", "t", "", "movement type: income or expense (required)")
	ledgerImportCmd.Flags().StringVar(&ledgerFile, "file", "", "ledger CSV file (required)")
	ledgerImportCmd.MarkFlagRequired("type")
	ledgerImportCmd.MarkFlagRequired("file")
}

func runLedgerImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flow, _ := parseFlow(ledgerType)

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	actor := app.Actor()
	if actor.TenantID == "" {
		return errors.ContextError("tenant")
	}

	file, err := os.Open(ledgerFile)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "ledger file", ledgerFile, err)
	}
	defer file.Close()

	movements, stats, err := parsers.ParseLedgerCSV(file, flow, filepath.Base(ledgerFile))
	if err != nil {
		return err
	}

	count, err := app.Ledger.ImportInternalMovements(ctx, actor.TenantID, movements)
	if err != nil {
		return err
	}

	app.Logger.WithFields(logger.Fields{
		"tenant_id":     actor.TenantID,
		"movement_type": flow,
		"imported":      count,
		"dropped":       stats.RecordsDropped,
	}).Info("Ledger imported")

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s movements from %s\n", count, flow, filepath.Base(ledgerFile))
	if stats.RecordsDropped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Dropped %d rows:\n%s\n", stats.RecordsDropped, stats.Issues.Format())
	}
	return nil
}
