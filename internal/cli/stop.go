package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

func newStopCmd(opts *rootOptions) *cobra.Command {
	var (
		reason string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop an experiment",
		Long: `Stop an experiment. Stopped experiments keep their data and still
assign visitors deterministically, but no longer accept events.

Example:
  llab stop hero --reason "treatment won" --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			if !yes {
				ok, err := confirm(fmt.Sprintf("Stop experiment '%s'", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			return opts.withServices(cmd, func(svc *services) error {
				exp, err := svc.registry.StopExperiment(context.Background(), id, reason)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Stopped experiment '%s'", exp.ID)
				if exp.StopReason != "" {
					fmt.Fprintf(cmd.OutOrStdout(), ": %s", exp.StopReason)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the experiment was stopped")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	return cmd
}

// confirm asks a yes/no question. Declining is not an error.
func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	_, err := prompt.Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort), errors.Is(err, promptui.ErrInterrupt):
		return false, nil
	default:
		return false, err
	}
}
