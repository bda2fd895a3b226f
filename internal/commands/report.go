package commands

import (
	"fmt"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/core"
	"fintrack/internal/services"

	"github.com/spf13/cobra"
)

func parseDay(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("parsing --%s: %w", flag, err)
	}
	return &t, nil
}

func newOverviewCommand() *cobra.Command {
	var user, from, to, groupBy string

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Print income, expense and timeline totals for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDay("from", from)
			if err != nil {
				return err
			}
			end, err := parseDay("to", to)
			if err != nil {
				return err
			}
			if end != nil {
				e := end.Add(24*time.Hour - time.Nanosecond)
				end = &e
			}

			return withBackend(cmd.Context(), func(app *backend.Backend) error {
				report, err := app.Analytics.Report(cmd.Context(), user,
					services.DateRange{From: start, To: end}, core.Granularity(groupBy))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "owner of the ledger (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&groupBy, "group-by", string(core.BucketMonth), "timeline bucket: day, week, month or year")

	return cmd
}

func newBudgetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budgets",
		Short: "Budget maintenance",
	}
	cmd.AddCommand(newBudgetsReconcileCommand())
	return cmd
}

func newBudgetsReconcileCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute spent amounts of every active budget from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(app *backend.Backend) error {
				active := true
				reconciled, over := 0, 0
				for page := 1; ; page++ {
					res, err := app.Budgets.List(cmd.Context(), user, services.BudgetFilter{
						Active:    &active,
						Page:      page,
						Limit:     100,
						Reconcile: true,
					})
					if err != nil {
						return err
					}
					for _, b := range res.Budgets {
						reconciled++
						if b.Summary.IsOverBudget {
							over++
							fmt.Fprintf(cmd.OutOrStdout(), "over budget: %s (%s of %s)\n",
								b.Name, b.Summary.TotalSpent, b.TotalBudget)
						}
					}
					if !res.Pagination.HasNextPage {
						break
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reconciled=%d over_budget=%d\n", reconciled, over)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "owner of the budgets (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
