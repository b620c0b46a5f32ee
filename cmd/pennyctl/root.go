package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"penny/internal/cli"
	"penny/internal/config"
	applog "penny/internal/log"
	"penny/internal/storage"
)

var (
	flagDBPath   string
	flagLogLevel string
	flagEmail    string

	cfg    *config.Config
	logger *applog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "pennyctl",
	Short:         "Operator tool for the penny budgeting assistant",
	Long:          "Run database migrations, ask the assistant a question and inspect stored budgets and goals.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cli.LoadEnvFile()
		logger = cli.SetupLogger(flagLogLevel, applog.ComponentApp)
		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if !cmd.Flags().Changed("db") {
			flagDBPath = cfg.SQLiteDBPath
		}
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Warn("  error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path (default SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}

// openRepository opens the SQLite database, applying pending migrations.
func openRepository() (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(flagDBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", flagDBPath, err)
	}
	return repo, nil
}
