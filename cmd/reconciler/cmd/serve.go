package cmd

import (
	"context"
	stderrors "errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang-bank-reconciliation/internal/api"
	"golang-bank-reconciliation/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only history API",
	Long: `Serve exposes saved sessions over HTTP. Requests name their tenant in the
X-Tenant-ID header.

  GET /healthz
  GET /metrics
  GET /v1/sessions?type=&status=&search=&created_from=&created_to=&sort=&page=
  GET /v1/sessions/{id}
  GET /v1/sessions/{id}/export?format=csv|json

Example:
  reconciler serve --addr :8080 --store-path /var/lib/reconciler/reconciler.db`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "listen address")
	bindFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	addr := viper.GetString("server.addr")
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(app.History, app.Metrics, app.Logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.Logger.WithField("addr", addr).Info("HTTP server listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return errors.InternalError("serve", err)
		}
		return nil
	case <-ctx.Done():
	}

	app.Logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.InternalError("shutdown", err)
	}
	return nil
}
