package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/decider/internal/auth"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Hash an admin API key",
	Long: `Print the bcrypt hash of an admin key for ADMIN_API_KEY_HASH. Without
an argument a new random key is generated and printed as well.

Examples:
  decider hash-key
  decider hash-key dsk_existing_key`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			generated, err := auth.GenerateAPIKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			key = generated
			fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\n", key)
		}

		hash, err := auth.HashAPIKey(key)
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\n", hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
