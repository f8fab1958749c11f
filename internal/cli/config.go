package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ResolveProfile.
const (
	EnvBaseURL = "DECIDER_BASE_URL"
	EnvAPIKey  = "DECIDER_API_KEY"
	EnvConfig  = "DECIDER_CLI_CONFIG"
)

// Config represents the CLI configuration: named decider services the
// remote commands can talk to.
type Config struct {
	DefaultProfile string             `yaml:"default_profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile represents one decider service
type Profile struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key,omitempty"` // only needed for admin commands
}

// GetConfigPath returns the path to the config file. DECIDER_CLI_CONFIG
// overrides the default under the home directory.
func GetConfigPath() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".decider", "config.yaml"), nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{
				DefaultProfile: "local",
				Profiles:       make(map[string]Profile),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveProfile returns the service to talk to.
// Priority: command flags > environment variables > config file.
func ResolveProfile(name, baseURLFlag, apiKeyFlag string) (*Profile, error) {
	p := Profile{BaseURL: os.Getenv(EnvBaseURL), APIKey: os.Getenv(EnvAPIKey)}

	if p.BaseURL == "" || name != "" {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = cfg.DefaultProfile
		}
		if fromFile, ok := cfg.Profiles[name]; ok {
			if p.BaseURL == "" {
				p.BaseURL = fromFile.BaseURL
			}
			if p.APIKey == "" {
				p.APIKey = fromFile.APIKey
			}
		} else if baseURLFlag == "" && p.BaseURL == "" {
			return nil, fmt.Errorf("profile '%s' not found in config", name)
		}
	}

	if baseURLFlag != "" {
		p.BaseURL = baseURLFlag
	}
	if apiKeyFlag != "" {
		p.APIKey = apiKeyFlag
	}
	if p.BaseURL == "" {
		return nil, fmt.Errorf("base_url must be configured (flag, %s or config file)", EnvBaseURL)
	}
	return &p, nil
}

// InitConfig creates a default config file pointing at a local service
func InitConfig() error {
	cfg := &Config{
		DefaultProfile: "local",
		Profiles: map[string]Profile{
			"local": {
				BaseURL: "http://localhost:8080",
				APIKey:  "admin-123",
			},
		},
	}

	return SaveConfig(cfg)
}
