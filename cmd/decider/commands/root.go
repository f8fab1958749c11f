package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	profile string
	format  string
	quiet   bool
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "decider",
	Short: "CLI tool for feature decisions",
	Long: `Decider is a command-line tool for the feature-decision engine.

Local commands read a feature document directly (--source); remote commands
talk to a running decider service (--base-url or a configured profile).

Examples:
  decider validate ./features.yaml
  decider features --source ./features.yaml
  decider choose new_checkout --source ./features.yaml --context '{"user_id":"u-1"}'
  decider choose --base-url http://localhost:8080 --context '{"user_id":"u-1"}'
  decider bucket feature:new_checkout:1 u-1
  decider reload --profile prod`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the decider service")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Admin API key")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Profile from the CLI config file")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}
