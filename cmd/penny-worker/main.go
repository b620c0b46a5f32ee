package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"penny/internal/amqp"
	"penny/internal/cli"
	applog "penny/internal/log"
	"penny/internal/sheets"
	gsheet "penny/internal/sheets/google"
	mem "penny/internal/sheets/memory"
	"penny/internal/worker"
)

var version = "dev"

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting penny-worker", "version", version)

	cfg := cli.LoadAndValidateConfig(logger)
	flush := cli.InitSentry(cfg, version, logger)
	defer flush()

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker",
			"error_type", applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	var exporter sheets.Exporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			BudgetSheet:     cfg.GoogleBudgetSheetName,
			GoalsSheet:      cfg.GoogleGoalsSheetName,
			CredentialsFile: cfg.GoogleCredentialsFile,
			Logger:          logger,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = mem.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, snapshots are kept in memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewExportWorker(exporter, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeSnapshots(gctx, w.HandleSnapshot)
	})
	g.Go(func() error {
		return w.RunReporter(gctx, cfg.WorkerReportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Export worker stopped", applog.FieldError, err)
		os.Exit(1)
	}

	s := w.Stats()
	logger.Info("Worker shutdown complete",
		"budgets", s.Budgets,
		"goals", s.Goals,
		"deletions", s.Deletions,
		"failures", s.Failures)
}
