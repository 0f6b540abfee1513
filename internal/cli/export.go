package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/landing-lab/landing-lab/internal/ledger"
	"github.com/landing-lab/landing-lab/internal/store"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format   string
		output   string
		compress bool
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export ledger counters and recent events",
		Long: `Export each variant's counters and its most recent events (up to 100 per
variant) in CSV or JSON format.

Examples:
  llab export hero --format csv > hero.csv
  llab export hero --format json --gzip -o hero.json.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}

			return opts.withServices(cmd, func(svc *services) error {
				ctx := context.Background()

				// Verify experiment exists
				exp, err := svc.registry.GetExperiment(ctx, args[0])
				if err != nil {
					return err
				}

				entries, err := svc.ledger.Entries(ctx, exp.ID)
				if err != nil {
					return err
				}

				write := func(w io.Writer) error {
					if format == "csv" {
						return exportCSV(w, entries)
					}
					return exportJSON(w, exp, entries)
				}

				if output == "" {
					return writeOutput(cmd.OutOrStdout(), compress, write)
				}

				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				if err := writeOutput(f, compress, write); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to close output: %w", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&compress, "gzip", false, "gzip the output")

	return cmd
}

// writeOutput runs write against dst, through a gzip stream when compress is
// set. The gzip footer is written before returning so a failed flush is
// reported instead of leaving a truncated archive.
func writeOutput(dst io.Writer, compress bool, write func(io.Writer) error) error {
	if !compress {
		return write(dst)
	}

	gz := gzip.NewWriter(dst)
	if err := write(gz); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

func exportCSV(out io.Writer, entries []*store.LedgerEntry) error {
	w := csv.NewWriter(out)

	// Write header
	if err := w.Write([]string{"timestamp", "variant", "event_id", "converted", "cta_click", "time_on_page", "scroll_depth", "data"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, entry := range entries {
		for _, e := range entry.Events {
			data := ledger.EventData(e.Data)
			timeOn, _ := data.TimeOnPage()
			scroll, _ := data.ScrollDepth()
			raw, err := json.Marshal(e.Data)
			if err != nil {
				return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
			}

			row := []string{
				strconv.FormatInt(e.Timestamp.Unix(), 10),
				entry.VariantID,
				e.ID,
				strconv.FormatBool(data.Converted()),
				strconv.FormatBool(data.CTAClick()),
				strconv.FormatFloat(timeOn, 'f', -1, 64),
				strconv.FormatFloat(scroll, 'f', -1, 64),
				string(raw),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Experiment string               `json:"experiment"`
	Variants   []*store.LedgerEntry `json:"variants"`
}

func exportJSON(out io.Writer, exp *store.Experiment, entries []*store.LedgerEntry) error {
	export := jsonExport{
		Experiment: exp.ID,
		Variants:   entries,
	}
	if export.Variants == nil {
		export.Variants = []*store.LedgerEntry{}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
