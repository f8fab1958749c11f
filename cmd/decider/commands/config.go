package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/decider/internal/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the decider CLI configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long: `Create a default configuration file at ~/.decider/config.yaml
(or $DECIDER_CLI_CONFIG) with a "local" profile.

Example:
  decider config init`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.InitConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		configPath, _ := cli.GetConfigPath()
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", configPath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	Long: `Display the configured profiles. API keys are masked.

Example:
  decider config list`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Default Profile: %s\n\n", cfg.DefaultProfile)
		fmt.Fprintln(w, "Profiles:")

		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := cfg.Profiles[name]
			fmt.Fprintf(w, "  %s:\n", name)
			fmt.Fprintf(w, "    base_url: %s\n", p.BaseURL)
			fmt.Fprintf(w, "    api_key: %s\n", maskKey(p.APIKey))
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <profile.key>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value.

Examples:
  decider config get local.base_url
  decider config get prod.api_key`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		name, key, err := splitConfigKey(args[0])
		if err != nil {
			return err
		}
		p, ok := cfg.Profiles[name]
		if !ok {
			return fmt.Errorf("profile '%s' not found", name)
		}

		switch key {
		case "base_url":
			fmt.Fprintln(cmd.OutOrStdout(), p.BaseURL)
		case "api_key":
			fmt.Fprintln(cmd.OutOrStdout(), p.APIKey)
		default:
			return fmt.Errorf("unknown key '%s', valid keys: base_url, api_key", key)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <profile.key> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value. Unknown profiles are created.
"default" selects the default profile.

Examples:
  decider config set prod.base_url https://decider.example.com
  decider config set prod.api_key my-admin-key
  decider config set default prod`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if args[0] == "default" {
			cfg.DefaultProfile = args[1]
		} else {
			name, key, err := splitConfigKey(args[0])
			if err != nil {
				return err
			}
			p := cfg.Profiles[name]
			switch key {
			case "base_url":
				p.BaseURL = args[1]
			case "api_key":
				p.APIKey = args[1]
			default:
				return fmt.Errorf("unknown key '%s', valid keys: base_url, api_key", key)
			}
			cfg.Profiles[name] = p
		}

		if err := cli.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])
		}
		return nil
	},
}

func splitConfigKey(s string) (profile, key string, err error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid key format, expected 'profile.key' (e.g., 'local.base_url')")
	}
	return parts[0], parts[1], nil
}

func maskKey(k string) string {
	if k == "" {
		return "-"
	}
	if len(k) > 4 {
		return k[:4] + "***"
	}
	return "***"
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
