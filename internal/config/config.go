// ABOUTME: Configuration loading and parsing for cosint-web
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, env overrides and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a value is neither in the file nor in the environment.
const (
	DefaultHTTPAddr      = "0.0.0.0:3000"
	DefaultAPIBaseURL    = "http://localhost:8000"
	DefaultAPITimeout    = 15 * time.Second
	DefaultCacheTTL      = 24 * time.Hour
	DefaultStreamTimeout = 2 * time.Minute
	DefaultOAuthProvider = "github"
)

// Config represents the complete cosint-web configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Site      SiteConfig      `yaml:"site" toml:"site"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	API       APIConfig       `yaml:"api" toml:"api"`
	Identity  IdentityConfig  `yaml:"identity" toml:"identity"`
	Chat      ChatConfig      `yaml:"chat" toml:"chat"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"COSINT_HTTP_ADDR"`
}

// SiteConfig describes how the site is reached from the outside.
// URL wins over PublicHost; with neither set the request origin is used.
type SiteConfig struct {
	URL        string `yaml:"url" toml:"url" env:"COSINT_SITE_URL"`
	PublicHost string `yaml:"public_host" toml:"public_host" env:"COSINT_PUBLIC_HOST"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" env:"COSINT_DB_PATH"`
}

// APIConfig points at the COSINT backend
type APIConfig struct {
	BaseURL   string  `yaml:"base_url" toml:"base_url" env:"COSINT_API_URL"`
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int     `yaml:"burst" toml:"burst"`

	Timeout  time.Duration `yaml:"-" toml:"-"`
	CacheTTL time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw  string `yaml:"timeout" toml:"timeout"`
	CacheTTLRaw string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// IdentityConfig holds the external identity provider settings.
// Leaving URL or AnonKey empty runs the site with a placeholder provider.
type IdentityConfig struct {
	URL           string `yaml:"url" toml:"url" env:"COSINT_IDENTITY_URL"`
	AnonKey       string `yaml:"anon_key" toml:"anon_key" env:"COSINT_IDENTITY_ANON_KEY"`
	JWTSecret     string `yaml:"jwt_secret" toml:"jwt_secret" env:"COSINT_IDENTITY_JWT_SECRET"`
	OAuthProvider string `yaml:"oauth_provider" toml:"oauth_provider"`
}

// Configured reports whether both the provider URL and key are set.
func (c IdentityConfig) Configured() bool {
	return c.URL != "" && c.AnonKey != ""
}

// ChatConfig holds chat streaming limits
type ChatConfig struct {
	StreamTimeout    time.Duration `yaml:"-" toml:"-"`
	StreamTimeoutRaw string        `yaml:"stream_timeout" toml:"stream_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// COSINT_* environment overrides are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(&cfg)
}

// FromEnv builds a Config from defaults and COSINT_* environment variables only.
func FromEnv() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" && !cfg.Tailscale.Enabled {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultAPIBaseURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = DefaultAPITimeout
	}
	if cfg.API.CacheTTL == 0 {
		cfg.API.CacheTTL = DefaultCacheTTL
	}
	if cfg.API.RateLimit > 0 && cfg.API.Burst <= 0 {
		cfg.API.Burst = 1
	}
	if cfg.Chat.StreamTimeout == 0 {
		cfg.Chat.StreamTimeout = DefaultStreamTimeout
	}
	if cfg.Identity.OAuthProvider == "" {
		cfg.Identity.OAuthProvider = DefaultOAuthProvider
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}

	if c.Site.URL != "" {
		u, err := url.Parse(c.Site.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("site.url must be an absolute URL, got %q", c.Site.URL)
		}
	}

	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"api.timeout", cfg.API.TimeoutRaw, &cfg.API.Timeout},
		{"api.cache_ttl", cfg.API.CacheTTLRaw, &cfg.API.CacheTTL},
		{"chat.stream_timeout", cfg.Chat.StreamTimeoutRaw, &cfg.Chat.StreamTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
