// Package cli provides the startup steps shared by cmd/fincon and
// cmd/fincon-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fincon/internal/config"
	applog "fincon/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig reads .env, then the environment.
func LoadConfig() *config.Config {
	LoadEnvFile()
	return config.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default. An unknown level falls back to info.
func SetupLogger(level, format string) *applog.Logger {
	cfg := applog.DefaultConfig()
	if lvl, err := applog.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	if format == "json" {
		cfg.Format = "json"
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// MustValidate exits the process when check reports a problem.
func MustValidate(logger *applog.Logger, check func() error) {
	if err := check(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
