package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAnalyticsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics RESOURCE",
		Short: "Show herd statistics for animals, breeding or milking",
		Long: `Show the statistics the server computes for a resource.

Examples:
  herdctl analytics animals
  herdctl analytics milking -j`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			if r.analytics == nil {
				return fmt.Errorf("analytics are available for: %s", strings.Join(resourceNames(func(r *resource) bool { return r.analytics != nil }), ", "))
			}
			svc, err := a.signedIn()
			if err != nil {
				return err
			}
			stats, err := r.analytics(cmd.Context(), svc)
			if err != nil {
				return err
			}
			return a.printItem(stats)
		},
	}
}

func newSummariesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summaries",
		Short: "Show daily milking totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.signedIn()
			if err != nil {
				return err
			}
			summaries, err := svc.MilkingSummaries(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				a.printResult(summaries)
				return nil
			}
			rows, _ := items(summaries, nil)
			return printTable(a.out, "milking summaries", rows, summaryColumns)
		},
	}
}
