package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const minJWTSecretLength = 32

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP. An empty URL disables cross-process change events on the server.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Identity
	JWTSecret     string
	JWTIssuer     string
	SessionTTL    time.Duration
	ResetTokenTTL time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// Google Sheets export (worker)
	GoogleSpreadsheetID      string
	GoogleSheetTabPrefix     string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	ExportRetryInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fincon.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fincon"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_export"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "fincon"),
		SessionTTL:    getEnvDuration("SESSION_TTL", 24*time.Hour),
		ResetTokenTTL: getEnvDuration("RESET_TOKEN_TTL", 30*time.Minute),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetTabPrefix:     getEnv("GOOGLE_SHEET_TAB_PREFIX", "Ledger"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		ExportRetryInterval: getEnvDuration("EXPORT_RETRY_INTERVAL", 30*time.Second),
	}

	return cfg
}

// Validate checks the settings the API server needs and returns all
// problems at once.
func (c *Config) Validate() error {
	return joinErrors(c.commonErrors())
}

// ValidateWorker checks the settings of the export worker: storage and
// logging as for the server, plus a mandatory broker and spreadsheet.
func (c *Config) ValidateWorker() error {
	var errors []string
	for _, e := range c.commonErrors() {
		// The worker never issues tokens.
		if strings.HasPrefix(e, "JWT_SECRET") || strings.HasPrefix(e, "invalid session ttl") || strings.HasPrefix(e, "invalid reset token ttl") {
			continue
		}
		errors = append(errors, e)
	}

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required for the worker")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty for the worker")
	}
	if c.DataBackend != "sqlite" {
		errors = append(errors, fmt.Sprintf("worker requires the sqlite backend, got '%s'", c.DataBackend))
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required for the worker")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if c.ExportRetryInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid export retry interval %v: must be at least 1 second", c.ExportRetryInterval))
	} else if c.ExportRetryInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export retry interval %v: must be at most 24 hours", c.ExportRetryInterval))
	}

	return joinErrors(errors)
}

func (c *Config) commonErrors() []string {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(c.JWTSecret) < minJWTSecretLength {
		errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least %d characters", minJWTSecretLength))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session ttl %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.ResetTokenTTL < time.Minute || c.ResetTokenTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reset token ttl %v: must be between 1 minute and 24 hours", c.ResetTokenTTL))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	return errors
}

func joinErrors(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
