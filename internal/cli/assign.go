package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newAssignCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "assign <id> <visitor>",
		Short: "Show which variant a visitor is assigned",
		Long: `Show the variant a visitor receives. The result is the same on every
call and matches what the client script computes in the browser.

Example:
  llab assign hero visitor-123`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd, func(svc *services) error {
				a, err := svc.assigner.AssignVariant(context.Background(), args[0], args[1])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					encoder := json.NewEncoder(out)
					encoder.SetIndent("", "  ")
					return encoder.Encode(a)
				}

				role := "treatment"
				if a.IsControl {
					role = "control"
				}
				fmt.Fprintf(out, "%s -> %s (%s, bucket %.2f)\n", a.VisitorID, a.VariantID, role, a.Bucket)
				if !a.Active {
					fmt.Fprintln(out, "Note: experiment is stopped; events will be rejected.")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the assignment as JSON")

	return cmd
}
