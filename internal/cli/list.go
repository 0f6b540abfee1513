package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all experiments",
		Long:  `List all experiments with their status and totals, newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd, func(svc *services) error {
				ctx := context.Background()
				out := cmd.OutOrStdout()

				experiments, err := svc.registry.ListExperiments(ctx)
				if err != nil {
					return err
				}

				if len(experiments) == 0 {
					fmt.Fprintln(out, "No experiments yet.")
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Create one with:")
					fmt.Fprintln(out, "  llab create hero --variants \"control,treatment\"")
					return nil
				}

				// Print table
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tVARIANTS\tIMPRESSIONS\tCONVERSIONS\tCREATED")

				for _, exp := range experiments {
					entries, err := svc.ledger.Entries(ctx, exp.ID)
					if err != nil {
						return fmt.Errorf("failed to get counters for %s: %w", exp.ID, err)
					}

					impressions, conversions := 0, 0
					for _, e := range entries {
						impressions += e.Impressions
						conversions += e.Conversions
					}

					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
						exp.ID,
						strings.ToUpper(string(exp.Status)),
						len(exp.Variants),
						formatNumber(impressions),
						formatNumber(conversions),
						exp.CreatedAt.Format("2006-01-02"),
					)
				}

				return w.Flush()
			})
		},
	}
}
