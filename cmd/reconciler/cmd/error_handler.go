package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler prints command failures and maps them to exit codes.
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a handler writing to stderr.
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     os.Stderr,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(h.out, "  %s: %v\n", key, value)
		}
	}
	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}
	if help := categoryHelp(err.Category); help != "" {
		fmt.Fprintf(h.out, "\n%s\n", help)
	}
	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}
	if err.Retryable {
		fmt.Fprintf(h.out, "\nThe operation can be retried.\n")
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "unknown command"),
		strings.HasPrefix(msg, "unknown flag"),
		strings.HasPrefix(msg, "unknown shorthand flag"),
		strings.Contains(msg, "required flag"),
		strings.Contains(msg, "arg(s)"):
		fmt.Fprintf(h.out, "Error: %s\n", msg)
		fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")
		return 2
	case os.IsPermission(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	return 1
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryValidation:
		return `Validation error help:
• Dates use YYYY-MM-DD and --from must not be after --to
• Movement type is income or expense
• Bank statements need a date column and a monto, abono or cargo column`

	case errors.CategoryContext:
		return `Context error help:
• Pass --tenant and --user, or set RECONCILER_TENANT_ID and RECONCILER_USER_ID`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and RECONCILER_* environment variables
• Verify configuration file syntax if using --config`

	case errors.CategoryNotFound:
		return `Not found help:
• Use 'reconciler history list' to see the tenant's sessions
• Sessions of another tenant are not visible`

	case errors.CategoryPersistence:
		return `Storage error help:
• Check that --store-path points to a writable location
• Retryable failures are retried automatically before they are reported`
	}
	return ""
}
