package main

import (
	"context"
	"os"
	"os/signal"

	"golang-bank-reconciliation/cmd/reconciler/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cmd.Execute(ctx)
	stop()

	os.Exit(cmd.NewCLIErrorHandler().HandleError(err))
}
