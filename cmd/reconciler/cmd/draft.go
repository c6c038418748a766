package cmd

import (
	"context"
	"fmt"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/pkg/errors"

	"github.com/spf13/cobra"
)

// Flags shared by the draft subcommands
var (
	draftType         string
	draftSessionID    string
	draftName         string
	draftOutputFormat string
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Continue a saved draft session",
	Long: `Draft commands resume a draft (the latest one of --type, or --session),
apply one change, save the draft again and render it.

Examples:
  reconciler draft show --type income
  reconciler draft automatch --type expense
  reconciler draft match 4b1f... pay-778 --type income
  reconciler draft clear 4b1f... --type income
  reconciler draft ignore 4b1f... --type income --session 9c2e...
  reconciler draft finalize --type income --name "Marzo ingresos"`,
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the draft without changing it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(cmd, false, func(ctx context.Context, ws *reconciler.Workspace) error {
			return nil
		})
	},
}

var draftAutoMatchCmd = &cobra.Command{
	Use:   "automatch",
	Short: "Run auto-match over the draft's pending rows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(cmd, true, func(ctx context.Context, ws *reconciler.Workspace) error {
			stats, err := ws.RunAutoMatch(nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Auto-match: %d matched, %d pending, %d unchanged\n",
				stats.Matched, stats.Pending, stats.PassedThrough)
			return nil
		})
	},
}

var draftMatchCmd = &cobra.Command{
	Use:   "match <bank-id> <internal-id>",
	Short: "Manually match a bank row to an internal movement",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(cmd, true, func(ctx context.Context, ws *reconciler.Workspace) error {
			return ws.SetManualMatch(args[0], args[1])
		})
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear <bank-id>",
	Short: "Clear a bank row's match or ignore flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(cmd, true, func(ctx context.Context, ws *reconciler.Workspace) error {
			return ws.ClearMatch(args[0])
		})
	},
}

var draftIgnoreCmd = &cobra.Command{
	Use:   "ignore <bank-id>",
	Short: "Exclude a bank row from reconciliation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(cmd, true, func(ctx context.Context, ws *reconciler.Workspace) error {
			return ws.IgnoreMovement(args[0])
		})
	},
}

var draftFinalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Complete the draft and notify any unmatched difference",
	Args:  cobra.NoArgs,
	RunE:  runDraftFinalize,
}

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.AddCommand(draftShowCmd, draftAutoMatchCmd, draftMatchCmd, draftClearCmd, draftIgnoreCmd, draftFinalizeCmd)

	flags := draftCmd.PersistentFlags()
	flags.StringVarP(&draftType, "type", "t", "", "movement type: income or expense (required)")
	flags.StringVar(&draftSessionID, "session", "", "draft session id (default: latest draft of --type)")
	flags.StringVarP(&draftOutputFormat, "output-format", "f", "console", "output format: console, json, csv")
	draftCmd.MarkPersistentFlagRequired("type")

	draftFinalizeCmd.Flags().StringVar(&draftName, "name", "", "final session name (default: keep the draft name)")
}

// resumeDraft opens the app and resumes the selected draft.
func resumeDraft(ctx context.Context) (*App, *reconciler.Workspace, *models.Session, error) {
	flow, err := parseFlow(draftType)
	if err != nil {
		return nil, nil, nil, err
	}

	app, err := openApp()
	if err != nil {
		return nil, nil, nil, err
	}
	ws, err := app.Workspace(flow)
	if err != nil {
		app.Close()
		return nil, nil, nil, err
	}

	var session *models.Session
	if draftSessionID != "" {
		session, err = ws.ResumeDraftByID(ctx, draftSessionID)
		if err == nil && session == nil {
			err = ws.State().Err
		}
	} else {
		session, err = ws.ResumeLatestDraft(ctx)
		if err == nil && session == nil {
			err = errors.NotFoundError("draft session", string(flow)).
				WithSuggestion("start one with: reconciler reconcile --save draft")
		}
	}
	if err != nil {
		app.Close()
		return nil, nil, nil, err
	}
	return app, ws, session, nil
}

// withDraft resumes the draft, applies fn and, when save is set, saves the
// draft again before rendering it.
func withDraft(cmd *cobra.Command, save bool, fn func(ctx context.Context, ws *reconciler.Workspace) error) error {
	ctx := cmd.Context()
	if _, err := config.CreateReportConfig(draftOutputFormat); err != nil {
		return err
	}

	app, ws, session, err := resumeDraft(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := fn(ctx, ws); err != nil {
		return err
	}

	if save {
		state := ws.State()
		if session, err = ws.SaveProgress(ctx, "", state.DateRange, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved draft %s (v%d)\n", session.ID, session.Version)
	}
	return render(workingSession(ws, session), draftOutputFormat, "", cmd.OutOrStdout())
}

func runDraftFinalize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := config.CreateReportConfig(draftOutputFormat); err != nil {
		return err
	}

	app, ws, _, err := resumeDraft(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	session, err := ws.SaveSession(ctx, draftName)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Finalized session %s (v%d), unmatched difference %s\n",
		session.ID, session.Version, session.Summary.UnmatchedDifference.StringFixed(2))
	return render(session, draftOutputFormat, "", cmd.OutOrStdout())
}
