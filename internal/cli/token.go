package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show API URL with access token",
		Long: `Show the management API URL with the current access token.

Use this when you've scrolled past the startup message. The token changes
every time the server starts.

Example:
  llab token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(cfg.Server.TokenFile)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no server running. Start with: llab serve")
				}
				return fmt.Errorf("failed to read token file: %w", err)
			}

			token := strings.TrimSpace(string(data))
			if token == "" {
				return fmt.Errorf("token file is empty. Restart the server with: llab serve")
			}

			serverURL := getEnvOrDefault("LL_SERVER_URL", fmt.Sprintf("http://localhost:%d", cfg.Server.Port))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API: %s/api/experiments?token=%s\n", serverURL, token)
			fmt.Fprintf(out, "Header: Authorization: Bearer %s\n", token)
			return nil
		},
	}
}
