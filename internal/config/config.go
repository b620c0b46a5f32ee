package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// debug, info, warn or error
	LogLevel string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleBudgetSheetName string
	GoogleGoalsSheetName  string
	GoogleCredentialsFile string

	// Text generation
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	GenAITimeout    time.Duration
	GenAIMaxRetries int
	ReplyMaxChars   int
	PersonasFile    string

	// Sessions
	SessionTTL time.Duration
	SessionMax int
	// SessionSecure marks the session cookie Secure; enable behind HTTPS.
	SessionSecure bool

	RateLimitPerMinute int

	// Error reporting
	SentryDSN         string
	SentryEnvironment string

	// Worker
	WorkerReportInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DataBackend: getEnv("DATA_BACKEND", "memory"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/penny.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "penny"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "export_snapshots"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleBudgetSheetName: getEnv("GOOGLE_BUDGET_SHEET_NAME", "Budgets"),
		GoogleGoalsSheetName:  getEnv("GOOGLE_GOALS_SHEET_NAME", "Goals"),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GenAITimeout:    getEnvDuration("GENAI_TIMEOUT", 20*time.Second),
		GenAIMaxRetries: getEnvInt("GENAI_MAX_RETRIES", 1),
		ReplyMaxChars:   getEnvInt("REPLY_MAX_CHARS", 500),
		PersonasFile:    getEnv("PERSONAS_FILE", ""),

		SessionTTL:    getEnvDuration("SESSION_TTL", 12*time.Hour),
		SessionMax:    getEnvInt("SESSION_MAX", 1000),
		SessionSecure: getEnvBool("SESSION_SECURE", false),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "development"),

		WorkerReportInterval: getEnvDuration("WORKER_REPORT_INTERVAL", 5*time.Minute),
	}
	return cfg
}

// Validate checks every setting and reports all problems at once, one per
// line, each prefixed with the environment variable to fix. It creates the
// SQLite directory when missing.
func (c *Config) Validate() error {
	var p problems
	c.validateServer(&p)
	c.validateStorage(&p)
	c.validateExport(&p)
	c.validateGeneration(&p)
	c.validateSessions(&p)
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration:\n- %s", strings.Join(p, "\n- "))
}

type problems []string

func (p *problems) addf(key, format string, args ...any) {
	*p = append(*p, key+": "+fmt.Sprintf(format, args...))
}

func (p *problems) intBetween(key string, v, lo, hi int) {
	if v < lo || v > hi {
		p.addf(key, "%d is outside %d..%d", v, lo, hi)
	}
}

func (p *problems) durationBetween(key string, v, lo, hi time.Duration) {
	if v < lo || v > hi {
		p.addf(key, "%v is outside %v..%v", v, lo, hi)
	}
}

func (p *problems) urlScheme(key, raw string, schemes ...string) {
	u, err := url.Parse(raw)
	if err != nil {
		p.addf(key, "not a URL: %v", err)
		return
	}
	if !slices.Contains(schemes, u.Scheme) {
		p.addf(key, "scheme %q not one of %v", u.Scheme, schemes)
	}
}

func (p *problems) fileExists(key, path string) {
	if _, err := os.Stat(path); err != nil {
		p.addf(key, "%s: %v", path, errors.Unwrap(err))
	}
}

func (c *Config) validateServer(p *problems) {
	if port, err := strconv.Atoi(c.Port); err != nil {
		p.addf("PORT", "%q is not a number", c.Port)
	} else {
		p.intBetween("PORT", port, 1, 65535)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		p.addf("LOG_LEVEL", "%q is not debug, info, warn or error", c.LogLevel)
	}
	p.intBetween("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute, 1, 10000)
	if c.SentryDSN != "" {
		p.urlScheme("SENTRY_DSN", c.SentryDSN, "http", "https")
	}
}

func (c *Config) validateStorage(p *problems) {
	switch c.DataBackend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			p.addf("SQLITE_DB_PATH", "required for the sqlite backend")
			return
		}
		if dir := filepath.Dir(c.SQLiteDBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				p.addf("SQLITE_DB_PATH", "cannot create %s: %v", dir, err)
			}
		}
	default:
		p.addf("DATA_BACKEND", "%q is not memory or sqlite", c.DataBackend)
	}
}

func (c *Config) validateExport(p *problems) {
	if c.AMQPURL != "" {
		p.urlScheme("AMQP_URL", c.AMQPURL, "amqp", "amqps")
		if c.AMQPExchange == "" {
			p.addf("AMQP_EXCHANGE", "required when AMQP_URL is set")
		}
		if c.AMQPQueue == "" {
			p.addf("AMQP_QUEUE", "required when AMQP_URL is set")
		}
	}
	p.durationBetween("WORKER_REPORT_INTERVAL", c.WorkerReportInterval, time.Second, 24*time.Hour)

	if !c.SheetsEnabled() {
		return
	}
	if c.GoogleBudgetSheetName == "" {
		p.addf("GOOGLE_BUDGET_SHEET_NAME", "required when GOOGLE_SPREADSHEET_ID is set")
	}
	if c.GoogleGoalsSheetName == "" {
		p.addf("GOOGLE_GOALS_SHEET_NAME", "required when GOOGLE_SPREADSHEET_ID is set")
	} else if c.GoogleGoalsSheetName == c.GoogleBudgetSheetName {
		p.addf("GOOGLE_GOALS_SHEET_NAME", "must differ from the budget sheet")
	}
	if c.GoogleCredentialsFile != "" {
		p.fileExists("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsFile)
	}
}

func (c *Config) validateGeneration(p *problems) {
	if c.GeminiBaseURL != "" {
		p.urlScheme("GEMINI_BASE_URL", c.GeminiBaseURL, "http", "https")
	}
	if c.GeminiModel == "" {
		p.addf("GEMINI_MODEL", "must not be empty")
	}
	p.durationBetween("GENAI_TIMEOUT", c.GenAITimeout, time.Second, 5*time.Minute)
	p.intBetween("GENAI_MAX_RETRIES", c.GenAIMaxRetries, 0, 5)
	if c.ReplyMaxChars < 0 {
		p.addf("REPLY_MAX_CHARS", "%d is negative", c.ReplyMaxChars)
	}
	if c.PersonasFile != "" {
		p.fileExists("PERSONAS_FILE", c.PersonasFile)
	}
}

func (c *Config) validateSessions(p *problems) {
	p.durationBetween("SESSION_TTL", c.SessionTTL, time.Minute, 30*24*time.Hour)
	if c.SessionMax < 1 {
		p.addf("SESSION_MAX", "%d must be at least 1", c.SessionMax)
	}
}

// SheetsEnabled reports whether snapshot export to Google Sheets is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAs parses key with parse, falling back when unset or malformed.
func getEnvAs[T any](key string, fallback T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if parsed, err := parse(v); err == nil {
		return parsed
	}
	return fallback
}

func getEnvInt(key string, fallback int) int { return getEnvAs(key, fallback, strconv.Atoi) }

func getEnvBool(key string, fallback bool) bool { return getEnvAs(key, fallback, strconv.ParseBool) }

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	return getEnvAs(key, fallback, time.ParseDuration)
}
