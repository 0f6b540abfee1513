package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landing-lab/landing-lab/internal/ledger"
)

func newRecordCmd(opts *rootOptions) *cobra.Command {
	var (
		converted bool
		ctaClick  bool
		timeOn    float64
		scroll    float64
		extra     string
	)

	cmd := &cobra.Command{
		Use:   "record <id> <variant>",
		Short: "Record an event for a variant",
		Long: `Record one event. Every event counts as an impression; flags add a
conversion, a CTA click, time on page and scroll depth.

Examples:
  llab record hero treatment --converted
  llab record hero control --time 42.5 --scroll 80 --data '{"source":"email"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := ledger.EventData{}
			if extra != "" {
				if err := json.Unmarshal([]byte(extra), &data); err != nil {
					return fmt.Errorf("invalid --data JSON: %w", err)
				}
			}
			if cmd.Flags().Changed("converted") {
				data["converted"] = converted
			}
			if cmd.Flags().Changed("cta") {
				data["ctaClick"] = ctaClick
			}
			if cmd.Flags().Changed("time") {
				data["timeOnPage"] = timeOn
			}
			if cmd.Flags().Changed("scroll") {
				data["scrollDepth"] = scroll
			}

			return opts.withServices(cmd, func(svc *services) error {
				entry, err := svc.ledger.RecordEvent(context.Background(), args[0], args[1], data)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Recorded event for %s/%s: %d impressions, %d conversions, %d CTA clicks\n",
					entry.ExperimentID, entry.VariantID, entry.Impressions, entry.Conversions, entry.CTAClicks)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&converted, "converted", false, "the visitor converted")
	cmd.Flags().BoolVar(&ctaClick, "cta", false, "the visitor clicked the CTA")
	cmd.Flags().Float64Var(&timeOn, "time", 0, "time on page in seconds")
	cmd.Flags().Float64Var(&scroll, "scroll", 0, "scroll depth, 0-100")
	cmd.Flags().StringVar(&extra, "data", "", "extra JSON fields stored with the event")

	return cmd
}
