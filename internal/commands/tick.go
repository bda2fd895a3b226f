package commands

import (
	"fmt"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/services"

	"github.com/spf13/cobra"
)

func newTickCommand() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Materialize every due recurring transaction once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := services.SystemClock()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parsing --at: %w", err)
				}
				now = t.UTC()
			}

			return withBackend(cmd.Context(), func(app *backend.Backend) error {
				report, err := app.Recurring.Tick(cmd.Context(), now)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "due=%d succeeded=%d failed=%d\n",
					report.Due, report.Succeeded, report.Failed)
				return report.Err()
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate due dates at this RFC 3339 instant instead of now")

	return cmd
}
