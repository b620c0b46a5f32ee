// Package cli holds the start-up steps shared by cmd/penny, cmd/penny-worker
// and cmd/pennyctl, and the terminal rendering used by pennyctl.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"penny/internal/assistant"
	"penny/internal/config"
	"penny/internal/genai"
	applog "penny/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger installs a text logger on stdout at the given level as the
// slog default and returns it tagged with component.
func SetupLogger(level, component string) *applog.Logger {
	lvl := applog.ParseLevel(level)
	logger := applog.New(applog.Config{
		Level:     lvl,
		Component: component,
		Handler:   slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
	})
	applog.SetDefault(logger)
	return logger.WithComponent(component)
}

// LoadAndValidateConfig loads configuration and exits on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err,
			"error_type", applog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// InitSentry enables error reporting when a DSN is configured. The returned
// function flushes buffered events and is safe to call either way.
func InitSentry(cfg *config.Config, release string, logger *applog.Logger) func() {
	if cfg.SentryDSN == "" {
		logger.Debug("Sentry disabled, no SENTRY_DSN")
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     release,
	})
	if err != nil {
		logger.Warn("Sentry init failed, continuing without error reporting", applog.FieldError, err)
		return func() {}
	}
	logger.Info("Sentry enabled", "environment", cfg.SentryEnvironment)
	return func() { sentry.Flush(2 * time.Second) }
}

// NewAssistant builds the chat assistant from configuration. Without an API
// key the assistant answers every turn with the fallback reply.
func NewAssistant(cfg *config.Config, logger *applog.Logger) (*assistant.Assistant, error) {
	catalog := assistant.DefaultCatalog()
	if cfg.PersonasFile != "" {
		c, err := assistant.LoadCatalog(cfg.PersonasFile)
		if err != nil {
			return nil, fmt.Errorf("load personas: %w", err)
		}
		catalog = c
	}

	var gen genai.Generator = genai.Unconfigured{}
	if cfg.GeminiAPIKey != "" {
		gen = genai.NewClient(genai.Options{
			BaseURL:    cfg.GeminiBaseURL,
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			MaxRetries: cfg.GenAIMaxRetries,
			Logger:     logger,
		})
		logger.Info("Text generation enabled", "model", cfg.GeminiModel)
	} else {
		logger.Warn("GEMINI_API_KEY not set, chat will answer with the fallback reply")
	}

	return assistant.New(gen, catalog, assistant.Config{
		Timeout:  cfg.GenAITimeout,
		MaxChars: cfg.ReplyMaxChars,
	}), nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// signal is logged once.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
