package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/TimurManjosov/decider/internal/store"
)

var allKeys = []string{
	"APP_ENV", "APP_HTTP_ADDR", "METRICS_ADDR", "CONFIG_SOURCE", "DECISION_MAKERS",
	"HASH_VERSION", "RELOAD_INTERVAL", "WATCH_CONFIG", "LOG_LEVEL", "LOG_FORMAT",
	"ADMIN_API_KEY", "ADMIN_API_KEY_HASH", "RATE_LIMIT_PER_IP", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"SHUTDOWN_TIMEOUT", "TRACING_SAMPLE_RATIO", "WEBHOOK_URLS", "WEBHOOK_SECRET",
	"WEBHOOK_MAX_RETRIES", "WEBHOOK_TIMEOUT",
}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		if old, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, old) })
		}
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "dev" {
		t.Errorf("Expected AppEnv='dev', got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr=':8080', got '%s'", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("Expected MetricsAddr=':9090', got '%s'", cfg.MetricsAddr)
	}
	if cfg.ConfigSource != "./features.json" {
		t.Errorf("Expected ConfigSource='./features.json', got '%s'", cfg.ConfigSource)
	}
	if cfg.DecisionMakers != store.DefaultDecisionMakers {
		t.Errorf("Expected default decision makers, got '%s'", cfg.DecisionMakers)
	}
	if cfg.HashVersion != 1 {
		t.Errorf("Expected HashVersion=1, got %d", cfg.HashVersion)
	}
	if cfg.ReloadInterval != 30*time.Second {
		t.Errorf("Expected ReloadInterval=30s, got %v", cfg.ReloadInterval)
	}
	if !cfg.WatchConfig {
		t.Error("Expected WatchConfig=true")
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("Expected info/json logging, got %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.AdminAPIKey != DefaultAdminAPIKey {
		t.Errorf("Expected AdminAPIKey='admin-123', got '%s'", cfg.AdminAPIKey)
	}
	if cfg.RateLimitPerIP != 600 {
		t.Errorf("Expected RateLimitPerIP=600, got %d", cfg.RateLimitPerIP)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected ShutdownTimeout=10s, got %v", cfg.ShutdownTimeout)
	}
	if len(cfg.WebhookURLs) != 0 || cfg.WebhookMaxRetries != 3 || cfg.WebhookTimeout != 5*time.Second {
		t.Errorf("unexpected webhook defaults: %v %d %v", cfg.WebhookURLs, cfg.WebhookMaxRetries, cfg.WebhookTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("APP_HTTP_ADDR", ":9999")
	t.Setenv("CONFIG_SOURCE", "postgres://localhost/decider")
	t.Setenv("DECISION_MAKERS", "targeting value")
	t.Setenv("HASH_VERSION", "2")
	t.Setenv("RELOAD_INTERVAL", "5s")
	t.Setenv("WATCH_CONFIG", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("RATE_LIMIT_PER_IP", "200")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	t.Setenv("WEBHOOK_URLS", "https://a.example.com/hook, ,https://b.example.com/hook")
	t.Setenv("WEBHOOK_SECRET", "whsec_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "staging" || cfg.HTTPAddr != ":9999" {
		t.Errorf("unexpected env/addr: %s %s", cfg.AppEnv, cfg.HTTPAddr)
	}
	if cfg.ConfigSource != "postgres://localhost/decider" {
		t.Errorf("Expected postgres source, got '%s'", cfg.ConfigSource)
	}
	if cfg.DecisionMakers != "targeting value" || cfg.HashVersion != 2 {
		t.Errorf("unexpected decision makers/hash: %s %d", cfg.DecisionMakers, cfg.HashVersion)
	}
	if cfg.ReloadInterval != 5*time.Second || cfg.WatchConfig {
		t.Errorf("unexpected reload settings: %v %v", cfg.ReloadInterval, cfg.WatchConfig)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "console" {
		t.Errorf("unexpected logging: %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.RateLimitPerIP != 200 {
		t.Errorf("Expected RateLimitPerIP=200, got %d", cfg.RateLimitPerIP)
	}
	if cfg.OTLPEndpoint != "localhost:4318" {
		t.Errorf("Expected OTLP endpoint, got '%s'", cfg.OTLPEndpoint)
	}
	if len(cfg.WebhookURLs) != 2 || cfg.WebhookURLs[1] != "https://b.example.com/hook" {
		t.Errorf("unexpected webhook URLs: %q", cfg.WebhookURLs)
	}
	if cfg.WebhookSecret != "whsec_test" {
		t.Errorf("Expected webhook secret, got '%s'", cfg.WebhookSecret)
	}
}

func validConfig() *Config {
	return &Config{
		AppEnv:             "dev",
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		ConfigSource:       "./features.json",
		DecisionMakers:     store.DefaultDecisionMakers,
		HashVersion:        1,
		ReloadInterval:     time.Minute,
		LogLevel:           "info",
		LogFormat:          "json",
		AdminAPIKey:        "secret",
		RateLimitPerIP:     100,
		ShutdownTimeout:    time.Second,
		TracingSampleRatio: 1,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }, "APP_HTTP_ADDR"},
		{"empty metrics addr", func(c *Config) { c.MetricsAddr = " " }, "METRICS_ADDR"},
		{"empty source", func(c *Config) { c.ConfigSource = "" }, "CONFIG_SOURCE"},
		{"unknown stage", func(c *Config) { c.DecisionMakers = "darkmode magic" }, "DECISION_MAKERS"},
		{"repeated stage", func(c *Config) { c.DecisionMakers = "value value" }, "DECISION_MAKERS"},
		{"hash version", func(c *Config) { c.HashVersion = 9 }, "HASH_VERSION"},
		{"negative interval", func(c *Config) { c.ReloadInterval = -time.Second }, "RELOAD_INTERVAL"},
		{"zero interval", func(c *Config) { c.ReloadInterval = 0 }, ""},
		{"negative shutdown", func(c *Config) { c.ShutdownTimeout = -1 }, "SHUTDOWN_TIMEOUT"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"rate limit", func(c *Config) { c.RateLimitPerIP = 0 }, "RATE_LIMIT_PER_IP"},
		{"sample ratio", func(c *Config) { c.TracingSampleRatio = 1.5 }, "TRACING_SAMPLE_RATIO"},
		{"no admin key", func(c *Config) { c.AdminAPIKey = "" }, "ADMIN_API_KEY"},
		{"hash only", func(c *Config) { c.AdminAPIKey = ""; c.AdminAPIKeyHash = "$2a$10$x" }, ""},
		{"prod default key", func(c *Config) { c.AppEnv = "prod"; c.AdminAPIKey = DefaultAdminAPIKey }, "ADMIN_API_KEY"},
		{"prod default key with hash", func(c *Config) {
			c.AppEnv = "production"
			c.AdminAPIKey = DefaultAdminAPIKey
			c.AdminAPIKeyHash = "$2a$10$x"
		}, ""},
		{"dev default key", func(c *Config) { c.AdminAPIKey = DefaultAdminAPIKey }, ""},
		{"webhook", func(c *Config) { c.WebhookURLs = []string{"https://x.example.com"}; c.WebhookSecret = "s" }, ""},
		{"webhook without secret", func(c *Config) { c.WebhookURLs = []string{"https://x.example.com"} }, "WEBHOOK_SECRET"},
		{"webhook bad url", func(c *Config) { c.WebhookURLs = []string{"x.example.com"}; c.WebhookSecret = "s" }, "WEBHOOK_URLS"},
		{"webhook negative retries", func(c *Config) { c.WebhookMaxRetries = -1 }, "WEBHOOK_MAX_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %s, want %s", ve.Field, tt.wantField)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	for env, want := range map[string]bool{"prod": true, "production": true, "dev": false, "staging": false} {
		if got := (&Config{AppEnv: env}).IsProduction(); got != want {
			t.Errorf("IsProduction(%s) = %v", env, got)
		}
	}
}
