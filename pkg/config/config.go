// Package config loads client configuration from an optional YAML file
// overridden by VISTA_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
type Config struct {
	API  APIConfig  `yaml:"api"`
	OIDC OIDCConfig `yaml:"oidc"`

	// CredentialsPath overrides where the token pair is persisted.
	CredentialsPath string `yaml:"credentials_path"`

	LogLevel string `yaml:"log_level"`

	// Keepalive re-verifies the session on this interval when running as
	// a long-lived client. Zero disables it.
	Keepalive time.Duration `yaml:"keepalive"`
}

// APIConfig holds backend connection settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// OIDCConfig holds federated sign-in settings. Federated sign-in is
// enabled when IssuerURL and ClientID are both set.
type OIDCConfig struct {
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	CallbackAddr string   `yaml:"callback_addr"`
}

// Enabled reports whether federated sign-in is configured.
func (c OIDCConfig) Enabled() bool {
	return c.IssuerURL != "" && c.ClientID != ""
}

// DefaultFilePath returns the default config file location,
// e.g. ~/.config/startupvista/config.yaml.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "startupvista", "config.yaml"), nil
}

// Load builds the configuration: defaults, then the YAML file (VISTA_CONFIG
// or the default location, when present), then environment overrides.
func Load() (*Config, error) {
	cfg := &Config{
		API:      APIConfig{BaseURL: "http://localhost:5000/api", Timeout: 30 * time.Second},
		LogLevel: "info",
	}

	path := os.Getenv("VISTA_CONFIG")
	if path == "" {
		if defaultPath, err := DefaultFilePath(); err == nil {
			path = defaultPath
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile merges the YAML file at path into cfg. A missing file is fine.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("VISTA_API_URL", c.API.BaseURL)
	c.API.Timeout = getEnvDuration("VISTA_API_TIMEOUT", c.API.Timeout)

	c.OIDC.IssuerURL = getEnv("VISTA_OIDC_ISSUER", c.OIDC.IssuerURL)
	c.OIDC.ClientID = getEnv("VISTA_OIDC_CLIENT_ID", c.OIDC.ClientID)
	c.OIDC.ClientSecret = getEnv("VISTA_OIDC_CLIENT_SECRET", c.OIDC.ClientSecret)
	c.OIDC.CallbackAddr = getEnv("VISTA_OIDC_CALLBACK_ADDR", c.OIDC.CallbackAddr)

	c.CredentialsPath = getEnv("VISTA_CREDENTIALS_PATH", c.CredentialsPath)
	c.LogLevel = getEnv("VISTA_LOG_LEVEL", c.LogLevel)
	c.Keepalive = getEnvDuration("VISTA_KEEPALIVE", c.Keepalive)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.Keepalive < 0 {
		return fmt.Errorf("keepalive must not be negative")
	}
	if c.OIDC.ClientID != "" && c.OIDC.IssuerURL == "" {
		return fmt.Errorf("oidc.issuer_url is required when oidc.client_id is set")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
