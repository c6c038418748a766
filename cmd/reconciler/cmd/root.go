package cmd

import (
	"context"
	"fmt"
	"os"

	"golang-bank-reconciliation/cmd/reconciler/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Bank reconciliation tool",
	Long: `Reconciler matches bank statement movements against the internal ledger
of recorded payments (income) and vendor expenses (expense), and keeps the
work as resumable draft sessions until it is finalized.

Every command runs on behalf of one tenant and user, taken from --tenant and
--user or from RECONCILER_TENANT_ID and RECONCILER_USER_ID.

Examples:
  reconciler ledger import --type income --file payments.csv
  reconciler reconcile --type income --bank-file march.csv --from 2024-03-01 --to 2024-03-31 --save draft
  reconciler draft match <bank-id> <internal-id> --type income
  reconciler draft finalize --type income
  reconciler history list --status completed
  reconciler serve --addr :8080`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("tenant", "", "tenant id")
	flags.String("user", "", "user id")
	flags.String("store", config.DriverSQLite, "store driver: sqlite or memory")
	flags.String("store-path", "reconciler.db", "SQLite database path")
	flags.String("files-root", "./originals", "directory retaining original statement files")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")

	bindFlag("verbose", flags.Lookup("verbose"))
	bindFlag("tenant.id", flags.Lookup("tenant"))
	bindFlag("user.id", flags.Lookup("user"))
	bindFlag("store.driver", flags.Lookup("store"))
	bindFlag("store.path", flags.Lookup("store-path"))
	bindFlag("files.root", flags.Lookup("files-root"))
	bindFlag("log.level", flags.Lookup("log-level"))
	bindFlag("log.format", flags.Lookup("log-format"))
	bindFlag("metrics.file", flags.Lookup("metrics-file"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig loads .env, then the config file, then the environment.
func initConfig() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "reconciler %s\n", getVersionString())
	},
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
