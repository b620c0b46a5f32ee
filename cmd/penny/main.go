package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"penny/internal/backend"
	"penny/internal/cli"
	apphttp "penny/internal/http"
	applog "penny/internal/log"
	"penny/internal/render"
	"penny/internal/session"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	flush := cli.InitSentry(cfg, version, logger)
	defer flush()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err,
			"error_type", applog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	assistant, err := cli.NewAssistant(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize assistant", applog.FieldError, err,
			"personas_file", cfg.PersonasFile)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Store:              result.Store,
		Assistant:          assistant,
		Sessions:           session.NewManager(cfg.SessionMax, cfg.SessionTTL, cfg.SessionSecure),
		Markdown:           render.NewMarkdown(),
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Publishing:         result.Publishing,
	})

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	}()

	logger.Info("Starting penny server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"publishing", strconv.FormatBool(result.Publishing),
		"version", version)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
