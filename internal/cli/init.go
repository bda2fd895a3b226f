// Package cli holds the start-up steps shared by every fintrack binary:
// environment loading, logging, configuration, backend wiring and signal
// handling.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/backend"
	"fintrack/internal/config"
	"fintrack/internal/log"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig reads the environment and validates it. The returned
// logger is configured at the level the configuration asks for.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger, error) {
	cfg := config.Load()
	logger := log.Setup(component, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

// OpenBackend builds the storage, events and services described by cfg.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.Backend, backend.Config, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, backend.Config{}, fmt.Errorf("backend config: %w", err)
	}
	b, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, bc, fmt.Errorf("create %s backend: %w", bc.Type, err)
	}
	return b, bc, nil
}

// Fatal logs err and exits. Only main functions call it.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM. The stop
// function releases the signal handler.
func ShutdownContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
