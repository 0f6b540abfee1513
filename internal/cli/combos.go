package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/landing-lab/landing-lab/internal/combos"
	"github.com/landing-lab/landing-lab/internal/config"
	"github.com/landing-lab/landing-lab/internal/patterns"
)

func rankOptions(cfg config.Config) combos.Options {
	return combos.Options{
		ProductionOnly:  cfg.Patterns.ProductionOnly,
		TopPairs:        cfg.Patterns.TopPairs,
		TripleThreshold: cfg.Patterns.TripleThreshold,
		Limit:           cfg.Patterns.Limit,
	}
}

func newCombosCmd(opts *rootOptions) *cobra.Command {
	var (
		catalogue   string
		triples     bool
		allStatuses bool
		asJSON      bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "combos",
		Short: "Rank pattern combinations by predicted lift",
		Long: `Analyze every pair of eligible patterns in the catalogue for conflicts and
synergies, predict the combined lift, and print a ranked implementation plan.

Examples:
  llab combos --catalogue patterns.yaml
  llab combos --triples --all-statuses --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd, cfg)

			path := cfg.Patterns.Catalogue
			if catalogue != "" {
				path = catalogue
			}
			cat, err := patterns.LoadCatalogue(path)
			if err != nil {
				return err
			}

			rank := rankOptions(cfg)
			rank.IncludeTriples = triples
			if allStatuses {
				rank.ProductionOnly = false
			}
			if limit > 0 {
				rank.Limit = limit
			}

			report, err := combos.NewRanker(patterns.StaticSource(cat), logger).TestAllCombinations(context.Background(), rank)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(report)
			}
			return printReport(out, report)
		},
	}

	cmd.Flags().StringVarP(&catalogue, "catalogue", "c", "", "pattern catalogue, JSON or YAML (overrides config and LL_CATALOGUE)")
	cmd.Flags().BoolVar(&triples, "triples", false, "extend the best pairs into triples")
	cmd.Flags().BoolVar(&allStatuses, "all-statuses", false, "include patterns that are not in production")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of combinations to show")

	return cmd
}

func printReport(out io.Writer, r *combos.Report) error {
	s := r.Summary
	fmt.Fprintf(out, "Tested %d combinations: %d promising, %d with conflicts\n", s.TotalTested, s.PromisingFound, s.ConflictsDetected)
	fmt.Fprintf(out, "Top predicted lift: %.1f%% (median %.1f%%)\n", s.TopPredictedLift, s.MedianLift)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPATTERNS\tLIFT\tCONFIDENCE\tCOMPLEXITY\tPRIORITY")
	for _, c := range r.TopCombinations {
		fmt.Fprintf(w, "%d\t%s\t%.1f%%\t%.0f%%\t%s\t%s\n",
			c.Rank,
			strings.Join(c.PatternNames, " + "),
			c.PredictedLift,
			c.Confidence*100,
			c.Complexity,
			c.Priority,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Implementation plan:")
	for _, p := range r.ImplementationPlan {
		fmt.Fprintf(out, "  Phase %d (%s): %s [cumulative %+.1f%%]\n", p.Phase, p.Name, p.Action, p.ExpectedImpact)
		for _, ids := range p.Combinations {
			fmt.Fprintf(out, "    - %s\n", strings.Join(ids, " + "))
		}
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(out)
		for _, rec := range r.Recommendations {
			fmt.Fprintf(out, "* %s\n", rec)
		}
	}
	return nil
}
