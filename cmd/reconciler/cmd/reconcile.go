package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Save modes of the reconcile command.
const (
	saveNone     = ""
	saveDraft    = "draft"
	saveComplete = "complete"
)

// Flags for the reconcile command
var (
	reconcileType   string
	bankFile        string
	periodFrom      string
	periodTo        string
	saveMode        string
	sessionName     string
	outputFormat    string
	outputFile      string
	dateTolerance   int
	amountEpsilon   string
	reconcileResume bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match a bank statement against the internal ledger",
	Long: `Reconcile imports a bank statement CSV, loads the internal ledger for the
period and auto-matches the two. The result is rendered and, with --save,
persisted as a draft or finalized session.

Income statements are matched by payment reference and amount; expense
statements by amount and date proximity, with a bonus when the voucher or
folio appears in the bank text.

Examples:
  # Preview a match without saving
  reconciler reconcile --type income --bank-file march.csv --from 2024-03-01 --to 2024-03-31

  # Save the result as a draft to continue later
  reconciler reconcile --type expense --bank-file cargos.csv --save draft --name "Marzo gastos"

  # Finalize immediately and export as JSON
  reconciler reconcile --type income --bank-file march.csv --save complete \
    --output-format json --output-file report.json

  # Wider tolerances
  reconciler reconcile --type expense --bank-file cargos.csv --date-tolerance 5 --epsilon 0.50`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	flags := reconcileCmd.Flags()
	flags.StringVarP(&reconcileType, "type", "t", "", "movement type: income or expense (required)")
	flags.StringVarP(&bankFile, "bank-file", "b", "", "path to the bank statement CSV file (required)")
	flags.StringVar(&periodFrom, "from", "", "period start (YYYY-MM-DD)")
	flags.StringVar(&periodTo, "to", "", "period end (YYYY-MM-DD)")
	flags.StringVar(&saveMode, "save", "", "persist the result: draft or complete")
	flags.StringVar(&sessionName, "name", "", "session name")
	flags.BoolVar(&reconcileResume, "resume", false, "save into the latest draft of this type instead of a new session")
	flags.StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	flags.StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	flags.IntVarP(&dateTolerance, "date-tolerance", "d", 3, "date matching tolerance in days")
	flags.StringVar(&amountEpsilon, "epsilon", "0.01", "amount tolerance")

	reconcileCmd.MarkFlagRequired("type")
	reconcileCmd.MarkFlagRequired("bank-file")

	bindFlag("matching.date_tolerance_days", flags.Lookup("date-tolerance"))
	bindFlag("matching.amount_epsilon", flags.Lookup("epsilon"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	if _, err := parseFlow(reconcileType); err != nil {
		return err
	}
	if err := validateFileExists(bankFile, "bank statement file"); err != nil {
		return err
	}
	if _, err := config.ParsePeriod(periodFrom, periodTo); err != nil {
		return err
	}
	switch saveMode {
	case saveNone, saveDraft, saveComplete:
	default:
		return errors.ValidationError(errors.CodeInvalidValue, "save", saveMode, nil).
			WithSuggestion("use --save draft or --save complete")
	}
	if _, err := config.CreateReportConfig(outputFormat); err != nil {
		return err
	}
	if viper.GetInt("matching.date_tolerance_days") < 0 {
		return errors.ValidationError(errors.CodeInvalidValue, "date-tolerance", dateTolerance, nil)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.ValidationError(errors.CodeInvalidValue, "output-file", outputFile, err).
					WithSuggestion(fmt.Sprintf("create the directory %s first", dir))
			}
		}
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeInvalidValue, description, filePath, nil).
			WithSuggestion(fmt.Sprintf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.ValidationError(errors.CodeInvalidValue, description, filePath, err).
			WithSuggestion("check that the file exists")
	}
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, description, filePath, err)
	}
	if info.IsDir() {
		return errors.ValidationError(errors.CodeInvalidValue, description, filePath, nil).
			WithSuggestion("expected a file, got a directory")
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	flow, _ := parseFlow(reconcileType)
	period, _ := config.ParsePeriod(periodFrom, periodTo)

	op := logger.StartOperation("reconcile", app.Logger, logger.Fields{
		"movement_type": flow,
		"bank_file":     bankFile,
		"period":        period.String(),
	})
	defer func() { op.Done(err) }()

	data, err := os.ReadFile(bankFile)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "bank statement file", bankFile, err)
	}

	ws, err := app.Workspace(flow)
	if err != nil {
		return err
	}

	var resumed *models.Session
	if reconcileResume {
		if resumed, err = ws.ResumeLatestDraft(ctx); err != nil {
			return err
		}
	}

	if _, err = ws.ImportBankCSV(string(data)); err != nil {
		if stats := ws.LastParseStats(); stats != nil && stats.Issues.Total() > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", stats.Issues.Format())
		}
		return err
	}
	stats := ws.LastParseStats()
	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", stats)
	if stats.RecordsDropped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Dropped %d of %d rows:\n%s\n",
			stats.RecordsDropped, stats.TotalRows, stats.Issues.Format())
	}

	if err = ws.LoadInternalMovements(ctx, period); err != nil {
		return err
	}
	matchStats, err := ws.RunAutoMatch(nil)
	if err != nil {
		return err
	}
	op.With("matched", matchStats.Matched).With("pending", matchStats.Pending)

	session := workingSession(ws, resumed)
	if saveMode != saveNone {
		source := &reconciler.SourceFile{Name: filepath.Base(bankFile), Data: data}
		if session, err = ws.SaveProgress(ctx, sessionName, period, source); err != nil {
			return err
		}
		if saveMode == saveComplete {
			if session, err = ws.SaveSession(ctx, sessionName); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved session %s (%s, v%d)\n", session.ID, session.Status, session.Version)
	}

	return render(session, outputFormat, outputFile, cmd.OutOrStdout())
}
