package cmd

import (
	"fmt"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/history"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
)

// Flags for the history commands
var (
	historyFilter       history.Filter
	historyType         string
	historyStatus       string
	historyOutputFormat string
	historyExportFormat string
	historyOutputFile   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse saved reconciliation sessions",
	Long: `History lists the tenant's sessions of both types, newest first, and opens
or exports a single session with its movements.

Examples:
  reconciler history list --type income --status completed
  reconciler history list --search marzo --created-from 2024-03-01 --page 2
  reconciler history show 9c2e...
  reconciler history export 9c2e... --format csv --output-file march.csv`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Render one session with its movements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryExport(cmd, args[0], string(reporter.FormatConsole), "")
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export one session as csv or json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryExport(cmd, args[0], historyExportFormat, historyOutputFile)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd)

	flags := historyListCmd.Flags()
	flags.StringVarP(&historyType, "type", "t", "", "filter by movement type: income or expense")
	flags.StringVar(&historyStatus, "status", "", "filter by status: draft or completed")
	flags.StringVar(&historyFilter.Search, "search", "", "search name, id or creator")
	flags.StringVar(&historyFilter.CreatedFrom, "created-from", "", "created on or after (YYYY-MM-DD)")
	flags.StringVar(&historyFilter.CreatedTo, "created-to", "", "created on or before (YYYY-MM-DD)")
	flags.StringVar(&historyFilter.Sort, "sort", history.SortUpdatedDesc, "sort order: updated_desc or updated_asc")
	flags.IntVar(&historyFilter.Page, "page", 1, "page number")
	flags.StringVarP(&historyOutputFormat, "output-format", "f", "console", "output format: console, json, csv")

	historyExportCmd.Flags().StringVar(&historyExportFormat, "format", "json", "export format: json, csv or console")
	historyExportCmd.Flags().StringVarP(&historyOutputFile, "output-file", "o", "", "output file path (default: stdout)")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reportConfig, err := config.CreateReportConfig(historyOutputFormat)
	if err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	filter := historyFilter
	filter.Type = models.MovementType(historyType)
	filter.Status = models.SessionStatus(historyStatus)

	page, err := app.History.List(ctx, app.Actor(), filter)
	if err != nil {
		return err
	}
	app.Logger.WithFields(logger.Fields{
		"page":  page.Page,
		"total": page.TotalItems,
	}).Debug("Sessions listed")

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}
	if err := generator.GenerateSessionList(page.Items, cmd.OutOrStdout()); err != nil {
		return err
	}
	if reportConfig.Format == reporter.FormatConsole && page.TotalPages > 1 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nPage %d of %d (%d sessions)\n", page.Page, page.TotalPages, page.TotalItems)
	}
	return nil
}

func runHistoryExport(cmd *cobra.Command, id, format, outputFile string) error {
	ctx := cmd.Context()
	if _, err := config.CreateReportConfig(format); err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	session, err := app.History.Open(ctx, app.Actor(), id)
	if err != nil {
		return err
	}
	return render(session, format, outputFile, cmd.OutOrStdout())
}
