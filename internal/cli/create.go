package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/landing-lab/landing-lab/internal/experiment"
)

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		file       string
		name       string
		page       string
		variants   string
		split      string
		minSample  int
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create a new experiment",
		Long: `Create a new experiment. The first variant is the control.

Without --split, traffic is divided evenly. A definition file holds the full
JSON definition, including declarative variant patches.

Examples:
  llab create hero --variants "control,treatment"
  llab create cta --variants "control,short,long" --split "50,25,25" --min-sample 1000
  llab create --file hero.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var def experiment.Definition

			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read definition: %w", err)
				}
				if err := json.Unmarshal(data, &def); err != nil {
					return fmt.Errorf("failed to parse definition: %w", err)
				}
				if len(args) == 1 {
					def.TestID = args[0]
				}
			} else {
				if len(args) != 1 {
					return fmt.Errorf("experiment id required. Example: llab create hero --variants \"control,treatment\"")
				}
				built, err := definitionFromFlags(args[0], variants, split)
				if err != nil {
					return err
				}
				def = built
			}

			if name != "" {
				def.Name = name
			}
			if page != "" {
				def.Page = page
			}
			if minSample > 0 {
				def.MinSampleSize = minSample
			}
			if confidence > 0 {
				def.ConfidenceLevel = confidence
			}

			return opts.withServices(cmd, func(svc *services) error {
				exp, err := svc.registry.CreateExperiment(context.Background(), def)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment '%s' with %d variants:\n", exp.ID, len(exp.Variants))
				for i, v := range exp.Variants {
					marker := ""
					if i == 0 {
						marker = " (control)"
					}
					fmt.Fprintf(out, "  %s: %g%%%s\n", v.ID, v.TrafficPercent, marker)
				}
				fmt.Fprintf(out, "  Minimum sample: %d per variant\n", exp.MinSampleSize)
				fmt.Fprintf(out, "  Confidence: %g%%\n", exp.ConfidenceLevel*100)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON definition file")
	cmd.Flags().StringVar(&name, "name", "", "human-readable name")
	cmd.Flags().StringVar(&page, "page", "", "page identifier")
	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variant ids, control first")
	cmd.Flags().StringVarP(&split, "split", "s", "", "comma-separated traffic percentages, same order as --variants")
	cmd.Flags().IntVar(&minSample, "min-sample", 0, "minimum impressions per variant before a verdict")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "confidence level, e.g. 0.95")

	return cmd
}

func definitionFromFlags(id, variants, split string) (experiment.Definition, error) {
	def := experiment.Definition{TestID: id}

	var ids []string
	for _, v := range strings.Split(variants, ",") {
		if v = strings.TrimSpace(v); v != "" {
			ids = append(ids, v)
		}
	}
	if len(ids) < 2 {
		return def, fmt.Errorf("need at least 2 variants. Example: --variants \"control,treatment\"")
	}

	percents := make([]float64, len(ids))
	if split == "" {
		for i := range percents {
			percents[i] = 100 / float64(len(ids))
		}
	} else {
		parts := strings.Split(split, ",")
		if len(parts) != len(ids) {
			return def, fmt.Errorf("--split has %d values for %d variants", len(parts), len(ids))
		}
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return def, fmt.Errorf("invalid split value %q", p)
			}
			percents[i] = f
		}
	}

	def.TrafficSplit = make(map[string]float64, len(ids))
	for i, v := range ids {
		def.Variants = append(def.Variants, experiment.VariantDefinition{VariantID: v, Name: v})
		def.TrafficSplit[v] = percents[i]
	}
	return def, nil
}
