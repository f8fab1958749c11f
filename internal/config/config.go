// Package config provides application configuration loading from environment variables and .env files.
// It uses viper for flexible configuration management with sensible defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/TimurManjosov/decider/internal/rollout"
	"github.com/TimurManjosov/decider/internal/store"
)

// DefaultAdminAPIKey is the development admin key. It is rejected in production.
const DefaultAdminAPIKey = "admin-123"

// Config holds all application configuration loaded from environment variables or .env file.
// Configuration priority: environment variables > .env file > defaults.
type Config struct {
	AppEnv             string        // Application environment (dev, staging, prod)
	HTTPAddr           string        // HTTP server bind address (e.g., ":8080")
	MetricsAddr        string        // Metrics server bind address
	ConfigSource       string        // Feature document location: path, file://, postgres:// or "memory"
	DecisionMakers     string        // Enabled stages in order, space separated
	HashVersion        int           // Bucketing hash version used when the document does not set one
	ReloadInterval     time.Duration // Poll interval for reloads; 0 disables polling
	WatchConfig        bool          // Reload file sources on change
	LogLevel           string        // zerolog level name
	LogFormat          string        // "json" or "console"
	AdminAPIKey        string        // Admin API key for the reload endpoint
	AdminAPIKeyHash    string        // bcrypt hash of the admin key; takes precedence over AdminAPIKey
	RateLimitPerIP     int           // Requests per minute per client IP
	OTLPEndpoint       string        // OTLP/HTTP traces endpoint; empty disables tracing
	ShutdownTimeout    time.Duration // Graceful shutdown deadline
	TracingSampleRatio float64       // Fraction of traces sampled when tracing is enabled
	WebhookURLs        []string      // Endpoints notified when a new generation activates
	WebhookSecret      string        // HMAC secret for webhook signatures
	WebhookMaxRetries  int           // Retries per webhook delivery
	WebhookTimeout     time.Duration // Per-request webhook timeout
}

// Load reads configuration from environment variables and .env file (if present).
// Environment variables take precedence over .env file values.
// Returns a Config struct with all values populated (either from env or defaults).
//
// Load does not validate; call Validate at startup.
func Load() (*Config, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigFile(".env") // Optional; silently ignored if file doesn't exist
	_ = viperInstance.ReadInConfig()    // Ignore error - .env is optional
	viperInstance.AutomaticEnv()        // Read from environment variables

	setConfigDefaults(viperInstance)

	return &Config{
		AppEnv:             viperInstance.GetString("APP_ENV"),
		HTTPAddr:           viperInstance.GetString("APP_HTTP_ADDR"),
		MetricsAddr:        viperInstance.GetString("METRICS_ADDR"),
		ConfigSource:       viperInstance.GetString("CONFIG_SOURCE"),
		DecisionMakers:     viperInstance.GetString("DECISION_MAKERS"),
		HashVersion:        viperInstance.GetInt("HASH_VERSION"),
		ReloadInterval:     viperInstance.GetDuration("RELOAD_INTERVAL"),
		WatchConfig:        viperInstance.GetBool("WATCH_CONFIG"),
		LogLevel:           viperInstance.GetString("LOG_LEVEL"),
		LogFormat:          viperInstance.GetString("LOG_FORMAT"),
		AdminAPIKey:        viperInstance.GetString("ADMIN_API_KEY"),
		AdminAPIKeyHash:    viperInstance.GetString("ADMIN_API_KEY_HASH"),
		RateLimitPerIP:     viperInstance.GetInt("RATE_LIMIT_PER_IP"),
		OTLPEndpoint:       viperInstance.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ShutdownTimeout:    viperInstance.GetDuration("SHUTDOWN_TIMEOUT"),
		TracingSampleRatio: viperInstance.GetFloat64("TRACING_SAMPLE_RATIO"),
		WebhookURLs:        splitList(viperInstance.GetString("WEBHOOK_URLS")),
		WebhookSecret:      viperInstance.GetString("WEBHOOK_SECRET"),
		WebhookMaxRetries:  viperInstance.GetInt("WEBHOOK_MAX_RETRIES"),
		WebhookTimeout:     viperInstance.GetDuration("WEBHOOK_TIMEOUT"),
	}, nil
}

// setConfigDefaults sets default values for all configuration options.
// These defaults are suitable for local development but should be overridden in production.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_HTTP_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("CONFIG_SOURCE", "./features.json")
	v.SetDefault("DECISION_MAKERS", store.DefaultDecisionMakers)
	v.SetDefault("HASH_VERSION", int(rollout.DefaultHashVersion))
	v.SetDefault("RELOAD_INTERVAL", "30s")
	v.SetDefault("WATCH_CONFIG", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ADMIN_API_KEY", DefaultAdminAPIKey) // Change in production!
	v.SetDefault("RATE_LIMIT_PER_IP", 600)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
	v.SetDefault("WEBHOOK_MAX_RETRIES", 3)
	v.SetDefault("WEBHOOK_TIMEOUT", "5s")
}

// splitList parses a comma separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsProduction reports whether AppEnv names a production environment.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

// ValidationError represents a configuration validation error with details about what failed.
type ValidationError struct {
	Field   string // Name of the configuration field
	Message string // Human-readable error message
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks that the configuration is usable and returns the first
// failure as a ValidationError.
//
// Validation Rules:
//  1. APP_HTTP_ADDR, METRICS_ADDR and CONFIG_SOURCE must be non-empty
//  2. DECISION_MAKERS must list known stages without repeats
//  3. HASH_VERSION must be a supported bucketing hash
//  4. RELOAD_INTERVAL and SHUTDOWN_TIMEOUT must not be negative
//  5. LOG_LEVEL must be a zerolog level, LOG_FORMAT json or console
//  6. RATE_LIMIT_PER_IP must be positive
//  7. TRACING_SAMPLE_RATIO must be between 0 and 1
//  8. WEBHOOK_URLS must be absolute http(s) URLs and need WEBHOOK_SECRET
//
// In production (APP_ENV=prod) the default admin key is rejected unless a
// bcrypt hash is configured.
func (c *Config) Validate() error {
	required := []struct{ field, value string }{
		{"APP_HTTP_ADDR", c.HTTPAddr},
		{"METRICS_ADDR", c.MetricsAddr},
		{"CONFIG_SOURCE", c.ConfigSource},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return ValidationError{Field: r.field, Message: "cannot be empty"}
		}
	}

	if _, err := store.ParseDecisionMakers(c.DecisionMakers); err != nil {
		return ValidationError{Field: "DECISION_MAKERS", Message: err.Error()}
	}
	if _, err := rollout.ParseHashVersion(c.HashVersion); err != nil {
		return ValidationError{Field: "HASH_VERSION", Message: err.Error()}
	}
	if c.ReloadInterval < 0 {
		return ValidationError{Field: "RELOAD_INTERVAL", Message: "must not be negative"}
	}
	if c.ShutdownTimeout < 0 {
		return ValidationError{Field: "SHUTDOWN_TIMEOUT", Message: "must not be negative"}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		return ValidationError{Field: "LOG_LEVEL", Message: fmt.Sprintf("unknown level '%s'", c.LogLevel)}
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return ValidationError{Field: "LOG_FORMAT", Message: fmt.Sprintf("must be 'json' or 'console', got '%s'", c.LogFormat)}
	}
	if c.RateLimitPerIP <= 0 {
		return ValidationError{Field: "RATE_LIMIT_PER_IP", Message: "must be positive"}
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return ValidationError{Field: "TRACING_SAMPLE_RATIO", Message: "must be between 0 and 1"}
	}

	for _, u := range c.WebhookURLs {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return ValidationError{Field: "WEBHOOK_URLS", Message: fmt.Sprintf("invalid URL '%s'", u)}
		}
	}
	if len(c.WebhookURLs) > 0 && c.WebhookSecret == "" {
		return ValidationError{Field: "WEBHOOK_SECRET", Message: "required when WEBHOOK_URLS is set"}
	}
	if c.WebhookMaxRetries < 0 || c.WebhookTimeout < 0 {
		return ValidationError{Field: "WEBHOOK_MAX_RETRIES", Message: "webhook retries and timeout must not be negative"}
	}

	if c.AdminAPIKey == "" && c.AdminAPIKeyHash == "" {
		return ValidationError{Field: "ADMIN_API_KEY", Message: "admin API key or hash is required"}
	}
	if c.IsProduction() && c.AdminAPIKeyHash == "" && c.AdminAPIKey == DefaultAdminAPIKey {
		return ValidationError{
			Field:   "ADMIN_API_KEY",
			Message: "default admin API key 'admin-123' is not allowed in production",
		}
	}

	return nil
}
