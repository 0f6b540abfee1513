package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/landing-lab/landing-lab/internal/snippets"
)

func newSnippetCmd(opts *rootOptions) *cobra.Command {
	var (
		format    string
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "snippet <id>",
		Short: "Generate the client script for an experiment",
		Long: `Generate the browser script that assigns variants locally with the same
hash as the server, applies the variant's patches and reports events.

Examples:
  llab snippet hero --server-url https://lab.example.com
  llab snippet hero --format html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd, func(svc *services) error {
				exp, err := svc.registry.GetExperiment(context.Background(), args[0])
				if err != nil {
					return err
				}

				// Determine server URL
				url := serverURL
				if url == "" {
					url, err = promptServerURL()
					if err != nil {
						return err
					}
				}

				files, err := snippets.Generate(snippets.Format(format), snippets.Config{
					Experiment: exp,
					ServerURL:  strings.TrimRight(url, "/"),
				})
				if err != nil {
					return fmt.Errorf("failed to generate snippet: %w", err)
				}

				printSnippets(cmd.OutOrStdout(), files)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(snippets.FormatHTML), "output format (js or html)")
	cmd.Flags().StringVarP(&serverURL, "server-url", "s", "", "server URL (e.g., https://lab.example.com)")

	return cmd
}

func promptServerURL() (string, error) {
	defaultURL := getEnvOrDefault("LL_SERVER_URL", "http://localhost:8080")

	prompt := promptui.Prompt{
		Label:   "Server URL",
		Default: defaultURL,
	}

	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}

	return strings.TrimRight(result, "/"), nil
}

func printSnippets(out io.Writer, files []snippets.SnippetFile) {
	for i, file := range files {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, strings.Repeat("=", 62))
		fmt.Fprintf(out, " %s\n", file.Filename)
		fmt.Fprintln(out, strings.Repeat("=", 62))
		fmt.Fprintln(out)
		fmt.Fprintln(out, file.Content)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
