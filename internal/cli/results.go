package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/landing-lab/landing-lab/internal/stats"
	"github.com/landing-lab/landing-lab/internal/store"
)

func newResultsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show significance results for an experiment",
		Long:  `Show conversion rates, confidence intervals and the chi-square verdict.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd, func(svc *services) error {
				out := cmd.OutOrStdout()

				analysis, err := svc.analyzer.Analyze(context.Background(), args[0])
				if errors.Is(err, store.ErrNotFound) {
					fmt.Fprintf(out, "No data: experiment '%s' not found\n", args[0])
					return nil
				}
				if err != nil {
					return err
				}

				if asJSON {
					encoder := json.NewEncoder(out)
					encoder.SetIndent("", "  ")
					return encoder.Encode(analysis)
				}

				printAnalysis(out, analysis)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the analysis as JSON")

	return cmd
}

func printAnalysis(out io.Writer, a *stats.Analysis) {
	// Print header
	fmt.Fprintf(out, "EXPERIMENT: %s\n", a.TestName)
	fmt.Fprintf(out, "STATUS: %s\n", a.Status)
	fmt.Fprintf(out, "MIN SAMPLE: %d per variant\n", a.MinSampleSize)
	fmt.Fprintln(out)

	// Print table header
	fmt.Fprintln(out, "VARIANT           VIEWS    CONVERSIONS  RATE     CI")
	fmt.Fprintln(out, strings.Repeat("─", 64))

	for _, v := range a.Variants {
		indicator := ""
		switch {
		case v.VariantID == a.Winner:
			indicator = " ← WINNER"
		case v.VariantID == a.BestVariant && v.VariantID != a.Control:
			indicator = " ← LEADING"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
		if v.Impressions == 0 {
			ciStr = "N/A"
		}

		// Truncate name if too long
		name := v.VariantID
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Fprintf(out, "%-16s  %-7d  %-11d  %-7s  %s%s\n",
			name,
			v.Impressions,
			v.Conversions,
			formatPercent(v.ConversionRate),
			ciStr,
			indicator,
		)
	}

	fmt.Fprintln(out)

	if a.Outcome == stats.OutcomeSignificant || a.Outcome == stats.OutcomeNotSignificant {
		fmt.Fprintf(out, "Chi-square: %.2f  p-value: %.3f  confidence: %.1f%%\n", a.ChiSquare, a.PValue, a.Confidence*100)
		if a.Lift != nil {
			fmt.Fprintf(out, "Lift vs control: %+.1f%%\n", *a.Lift)
		}
	}
	fmt.Fprintln(out, a.Recommendation)
}
