// Package config defines the gateway configuration and YAML loading helpers.
// All tuning constants (selection scoring, refresh buffers, sweep pacing) live
// here with defaults matching the production deployment; the YAML file can
// override any of them.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway process.
type Config struct {
	// Host is the listen address. Empty means all interfaces.
	Host string `yaml:"host"`
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// APIKeys is the caller allow-list checked on /v1 endpoints.
	APIKeys []string `yaml:"api-keys"`
	// AdminKey guards the /admin endpoints. Empty disables them.
	AdminKey string `yaml:"admin-key"`

	// ProxyURL routes upstream traffic through a SOCKS5/HTTP proxy when set.
	ProxyURL string `yaml:"proxy-url"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Selector SelectorConfig `yaml:"selector"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// UpstreamConfig describes the Anthropic endpoints the gateway talks to.
type UpstreamConfig struct {
	// BaseURL is the messages API origin.
	BaseURL string `yaml:"base-url"`
	// TokenURL is the OAuth token-exchange endpoint.
	TokenURL string `yaml:"token-url"`
	// ClientID is the fixed OAuth client identifier sent on refresh.
	ClientID string `yaml:"client-id"`
	// RequestTimeout bounds one unary messages call.
	RequestTimeout time.Duration `yaml:"request-timeout"`
	// DefaultModel is used when the requested model has no alias entry.
	DefaultModel string `yaml:"default-model"`
}

// SelectorConfig tunes the credential pool scoring. Lower score wins.
type SelectorConfig struct {
	// ExpiryBuffer excludes credentials expiring within this window.
	ExpiryBuffer time.Duration `yaml:"expiry-buffer"`
	// RecentErrorWindow is how long an error keeps its flat penalty.
	RecentErrorWindow time.Duration `yaml:"recent-error-window"`
	// ErrorWeight multiplies the error count.
	ErrorWeight int64 `yaml:"error-weight"`
	// RecentErrorPenalty is the flat penalty for an error inside the window.
	RecentErrorPenalty int64 `yaml:"recent-error-penalty"`
	// FreshBonus is subtracted for never-used credentials.
	FreshBonus int64 `yaml:"fresh-bonus"`
	// TopN is the tie-spreading pool size picked from uniformly at random.
	TopN int `yaml:"top-n"`
}

// RefreshConfig tunes the token lifecycle manager and the scheduled sweep.
type RefreshConfig struct {
	// Timeout bounds one token-exchange call.
	Timeout time.Duration `yaml:"timeout"`
	// SweepBuffer refreshes credentials expiring within this window.
	SweepBuffer time.Duration `yaml:"sweep-buffer"`
	// SweepDelay is the pause between credentials during a sweep. This is a
	// deliberate throttle against upstream rate limits.
	SweepDelay time.Duration `yaml:"sweep-delay"`
	// SweepSchedule is a cron expression for the proactive sweep.
	SweepSchedule string `yaml:"sweep-schedule"`
}

// StoreConfig selects and locates the credential store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "file".
	Driver string `yaml:"driver"`
	// Path is the database file (sqlite) or directory (file).
	Path string `yaml:"path"`
}

// LoggingConfig controls logrus output and rotation.
type LoggingConfig struct {
	// Level is a logrus level name ("debug", "info", ...).
	Level string `yaml:"level"`
	// File enables rotated file output when non-empty.
	File string `yaml:"file"`
	// MaxSizeMB is the rotation threshold for the log file.
	MaxSizeMB int `yaml:"max-size-mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `yaml:"max-backups"`
}

// Default returns a configuration with all tunables at their reference values.
func Default() *Config {
	return &Config{
		Port: 8317,
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.anthropic.com",
			TokenURL:       "https://console.anthropic.com/v1/oauth/token",
			ClientID:       "9d1c250a-e61b-44d9-88ed-5944d1962f5e",
			RequestTimeout: 120 * time.Second,
			DefaultModel:   "claude-sonnet-4-20250514",
		},
		Selector: SelectorConfig{
			ExpiryBuffer:       2 * time.Minute,
			RecentErrorWindow:  5 * time.Minute,
			ErrorWeight:        10,
			RecentErrorPenalty: 50,
			FreshBonus:         5,
			TopN:               3,
		},
		Refresh: RefreshConfig{
			Timeout:       30 * time.Second,
			SweepBuffer:   10 * time.Minute,
			SweepDelay:    time.Second,
			SweepSchedule: "@every 10m",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "credentials.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load reads the YAML file at path on top of the defaults and applies
// environment overrides for secrets.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GATEWAY_API_KEYS"); v != "" {
		c.APIKeys = splitAndTrim(v)
	}
	if v := os.Getenv("GATEWAY_ADMIN_KEY"); v != "" {
		c.AdminKey = v
	}
	if v := os.Getenv("GATEWAY_PROXY_URL"); v != "" {
		c.ProxyURL = v
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Selector.TopN <= 0 {
		return fmt.Errorf("config: selector top-n must be positive")
	}
	switch c.Store.Driver {
	case "sqlite", "file":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// HasAPIKey reports whether token is in the caller allow-list. An empty
// allow-list rejects everything.
func (c *Config) HasAPIKey(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	for _, k := range c.APIKeys {
		if strings.TrimSpace(k) == token {
			return true
		}
	}
	return false
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
