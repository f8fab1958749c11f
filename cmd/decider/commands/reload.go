package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the configuration of a running service",
	Long: `Ask a running service to reload its feature document. Requires the
admin API key. A rejected document leaves the active configuration serving.

Examples:
  decider reload --base-url http://localhost:8080 --api-key admin-123
  decider reload --profile prod`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		resp, err := c.Reload(context.Background())
		if err != nil {
			return fmt.Errorf("reload failed: %w", err)
		}
		if !quiet {
			state := "unchanged"
			if resp.Changed {
				state = "new generation"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d features, etag %s\n", state, resp.Features, resp.ETag)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}
