package cli

import (
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "llab",
		Short: "landing-lab - landing page experiments and pattern combination analysis",
		Long: `landing-lab assigns visitors to experiment variants with a deterministic
hash, records their engagement, and tells you when a variant has won.

It also predicts how optimization patterns interact when combined, and
ranks the combinations worth testing next.`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/landing-lab/config.toml)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database path (overrides config and LL_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newServeCmd(opts),
		newCreateCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newStopCmd(opts),
		newAssignCmd(opts),
		newRecordCmd(opts),
		newResultsCmd(opts),
		newExportCmd(opts),
		newSnippetCmd(opts),
		newCombosCmd(opts),
		newTokenCmd(opts),
	)

	return cmd
}

func Execute() error {
	return newRootCmd().Execute()
}
