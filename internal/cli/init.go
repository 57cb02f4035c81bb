// Package cli holds the start-up and shutdown steps shared by the
// tripsplit binaries.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tripsplit/internal/config"
	applog "tripsplit/internal/log"
)

// LoadConfig reads .env (when present) and the environment.
func LoadConfig() *config.Config {
	// .env is optional outside local development
	_ = godotenv.Load()
	return config.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	lc := applog.DefaultConfig()
	lc.Level = applog.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	lc.Component = component
	logger := applog.New(lc)
	applog.SetDefault(logger)
	return logger
}

// MustValidate runs every check and exits the process on the first failure.
func MustValidate(logger *applog.Logger, checks ...func() error) {
	for _, check := range checks {
		if err := check(); err != nil {
			logger.Error("Configuration validation failed", "error", err)
			os.Exit(1)
		}
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownOnDone blocks until ctx is done, then calls shutdown with a fresh
// context bounded by timeout. It is meant to run inside an errgroup next to
// the component it stops.
func ShutdownOnDone(ctx context.Context, logger *applog.Logger, timeout time.Duration, shutdown func(context.Context) error) error {
	<-ctx.Done()
	logger.Info("Shutdown signal received", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached")
		}
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
