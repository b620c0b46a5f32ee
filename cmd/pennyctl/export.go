package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"penny/internal/amqp"
	"penny/internal/cli"
	"penny/internal/core"
	gsheet "penny/internal/sheets/google"
	"penny/internal/storage"
	"penny/internal/worker"
)

var flagViaQueue bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Re-export a user's budget and goals to Google Sheets",
	Long: "Builds snapshots of the stored budget and goals of one user and writes them to " +
		"the configured spreadsheet. With --queue the snapshots are published for " +
		"penny-worker instead.",
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagEmail, "email", "", "Email of the user")
	exportCmd.Flags().BoolVar(&flagViaQueue, "queue", false, "Publish to AMQP instead of writing directly")
	rootCmd.AddCommand(exportCmd)
}

// snapshotHandler is satisfied by ExportWorker.HandleSnapshot and
// amqp.Client.PublishSnapshot.
type snapshotHandler func(context.Context, *amqp.SnapshotMessage) error

func runExport(cmd *cobra.Command, _ []string) error {
	if flagEmail == "" {
		return fmt.Errorf("--email is required")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	handle, closeFn, err := exportTarget(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	msgs, err := collectSnapshots(ctx, repo, flagEmail)
	if err != nil {
		return err
	}
	var errs []error
	for _, msg := range msgs {
		if err := handle(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", msg.Kind, msg.ID, err))
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), cli.RenderCard("Export", []cli.Field{
		{Label: "User", Value: flagEmail},
		{Label: "Snapshots", Value: fmt.Sprint(len(msgs))},
		{Label: "Failed", Value: fmt.Sprint(len(errs)), Tone: failTone(len(errs))},
	}))
	return errors.Join(errs...)
}

func exportTarget(ctx context.Context) (snapshotHandler, func(), error) {
	if flagViaQueue {
		if cfg.AMQPURL == "" {
			return nil, nil, errors.New("AMQP_URL is not set")
		}
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return client.PublishSnapshot, func() { _ = client.Close() }, nil
	}

	if !cfg.SheetsEnabled() {
		return nil, nil, errors.New("GOOGLE_SPREADSHEET_ID is not set")
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		BudgetSheet:     cfg.GoogleBudgetSheetName,
		GoalsSheet:      cfg.GoogleGoalsSheetName,
		CredentialsFile: cfg.GoogleCredentialsFile,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return worker.NewExportWorker(client, logger).HandleSnapshot, func() {}, nil
}

// collectSnapshots builds one snapshot for the budget, if any, and one per goal.
func collectSnapshots(ctx context.Context, repo *storage.SQLiteRepository, email string) ([]*amqp.SnapshotMessage, error) {
	user, err := repo.UserByEmail(ctx, core.NormalizeEmail(email))
	if err != nil {
		return nil, userLookupError(email, err)
	}
	var msgs []*amqp.SnapshotMessage
	rec, ok, err := repo.GetBudget(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		msgs = append(msgs, amqp.NewBudgetSnapshot(user.ID, user.Email, rec))
	}
	goals, err := repo.ListGoals(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range goals {
		msgs = append(msgs, amqp.NewGoalSnapshot(user.ID, user.Email, g))
	}
	return msgs, nil
}

func failTone(n int) cli.Tone {
	if n > 0 {
		return cli.ToneBad
	}
	return cli.ToneGood
}
