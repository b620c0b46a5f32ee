package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"penny/internal/cli"
	"penny/internal/storage"
)

var flagSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQLite schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := storage.RunMigrations(flagDBPath); err != nil {
			return err
		}
		return printMigrationStatus(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := storage.RollbackMigrations(flagDBPath, flagSteps); err != nil {
			return err
		}
		return printMigrationStatus(cmd)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printMigrationStatus(cmd)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&flagSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func printMigrationStatus(cmd *cobra.Command) error {
	st, err := storage.GetMigrationStatus(flagDBPath)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderMigrationStatus(flagDBPath, st))
	return nil
}

func renderMigrationStatus(path string, st storage.MigrationStatus) string {
	version, tone := "none", cli.ToneWarn
	if st.Applied {
		version, tone = strconv.FormatUint(uint64(st.Version), 10), cli.ToneGood
	}
	dirty := cli.Field{Label: "Dirty", Value: "no"}
	if st.Dirty {
		dirty = cli.Field{Label: "Dirty", Value: "yes", Tone: cli.ToneBad}
	}
	return cli.RenderCard("Schema", []cli.Field{
		{Label: "Database", Value: path},
		{Label: "Version", Value: version, Tone: tone},
		dirty,
	})
}
