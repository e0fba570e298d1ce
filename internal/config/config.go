// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Env always wins, so deployments can
// run without a file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs at startup.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// QuoteAPIURL is the base URL of the upstream quote source.
	QuoteAPIURL string `yaml:"quote_api_url"`

	// AdminToken guards the admin recompute endpoint. Empty token means
	// the endpoint denies everything.
	AdminToken string `yaml:"admin_token"`

	// RefreshInterval is how often tracked symbols are refreshed,
	// e.g. "300s" or "5m".
	RefreshInterval duration `yaml:"refresh_interval"`

	// FetchConcurrency bounds parallel upstream lookups per cycle.
	FetchConcurrency int `yaml:"fetch_concurrency"`

	// CacheTTL is the freshness window of the in-process quote cache.
	CacheTTL duration `yaml:"cache_ttl"`

	// SymbolRegistryPath points at an optional local JSON symbol registry
	// merged into search results.
	SymbolRegistryPath string `yaml:"symbol_registry"`
}

// duration lets YAML carry values like "5m" or "300s".
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// Interval returns the refresh interval as a time.Duration.
func (c *Config) Interval() time.Duration { return time.Duration(c.RefreshInterval) }

// TTL returns the quote cache TTL as a time.Duration.
func (c *Config) TTL() time.Duration { return time.Duration(c.CacheTTL) }

func defaults() *Config {
	return &Config{
		Port:             "8080",
		QuoteAPIURL:      "https://quotes.foliotrack.dev",
		RefreshInterval:  duration(300 * time.Second),
		FetchConcurrency: 5,
		CacheTTL:         duration(30 * time.Second),
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (if path is non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("fetch_concurrency must be at least 1, got %d", cfg.FetchConcurrency)
	}
	if cfg.Interval() < time.Second {
		return nil, fmt.Errorf("refresh_interval too short: %s", cfg.Interval())
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.QuoteAPIURL, "QUOTE_API_URL")
	setString(&cfg.AdminToken, "ADMIN_TOKEN")
	setString(&cfg.SymbolRegistryPath, "SYMBOL_REGISTRY")

	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.RefreshInterval = duration(parsed)
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = duration(parsed)
		}
	}
	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetchConcurrency = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
