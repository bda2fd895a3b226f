package commands

import (
	"errors"
	"fmt"

	"fintrack/internal/config"
	"fintrack/internal/storage"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return errors.New("--steps must be at least 1")
			}
			return withDBPath(func(path string) error {
				if err := storage.RollbackMigrations(path, steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDBPath(func(path string) error {
					if err := storage.RunMigrations(path); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDBPath(func(path string) error {
					v, dirty, err := storage.MigrationVersion(path)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
					return nil
				})
			},
		},
	)

	return cmd
}

func withDBPath(fn func(path string) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	if e.cfg.DataBackend != config.BackendSQLite {
		return fmt.Errorf("migrations need the sqlite backend, configured: %s", e.cfg.DataBackend)
	}
	return fn(e.cfg.SQLiteDBPath)
}
