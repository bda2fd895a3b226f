// Package commands implements fintrackctl, the operator command line.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fintrackctl",
		Short: "Operate a fintrack ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newTickCommand(),
		newOverviewCommand(),
		newBudgetsCommand(),
		newMigrateCommand(),
	)

	return rootCmd
}

// env is what a command runs against: validated configuration and a logger.
type env struct {
	cfg    *config.Config
	logger *log.Logger
}

func loadEnv() (*env, error) {
	cli.LoadEnvFile()
	cfg, logger, err := cli.LoadAndValidateConfig(log.ComponentCLI)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// withBackend opens the configured backend for the duration of fn.
func withBackend(ctx context.Context, fn func(*backend.Backend) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	app, _, err := cli.OpenBackend(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
