package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces every configuration variable, e.g. FORGEERP_AUTH_SECRET.
const envPrefix = "FORGEERP_"

// Config is the immutable service configuration, resolved once at startup.
// Durations are carried as integer minutes/seconds so plain environment
// variables stay readable.
type Config struct {
	HTTPAddr    string `koanf:"http_addr"`
	PostgresDSN string `koanf:"pg_dsn"`

	AuthSecret      string `koanf:"auth_secret"`
	TokenTTLMinutes int    `koanf:"token_ttl_minutes"`

	LockoutThreshold int `koanf:"lockout_threshold"`
	LockoutMinutes   int `koanf:"lockout_minutes"`

	MinApprovals int `koanf:"min_approvals"`

	GitHubBaseURL string `koanf:"github_base_url"`
	GitHubOwner   string `koanf:"github_owner"`
	GitHubRepo    string `koanf:"github_repo"`
	GitHubToken   string `koanf:"github_token"`

	ExternalTimeoutSeconds int `koanf:"external_timeout_seconds"`

	AddonsDir string `koanf:"addons_dir"`
	RepoDir   string `koanf:"repo_dir"`

	RateLimitPerSecond int `koanf:"rate_limit_per_second"`
	RateLimitBurst     int `koanf:"rate_limit_burst"`
}

func defaults() *Config {
	return &Config{
		HTTPAddr:               ":8080",
		TokenTTLMinutes:        30,
		LockoutThreshold:       5,
		LockoutMinutes:         15,
		MinApprovals:           1,
		GitHubBaseURL:          "https://api.github.com",
		GitHubOwner:            "forgeerp",
		GitHubRepo:             "forgeerp",
		ExternalTimeoutSeconds: 10,
		AddonsDir:              "addons",
		RepoDir:                ".",
		RateLimitPerSecond:     50,
		RateLimitBurst:         100,
	}
}

// Load resolves the configuration from built-in defaults overridden by
// FORGEERP_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("config: FORGEERP_AUTH_SECRET is required")
	}
	if c.TokenTTLMinutes <= 0 {
		return errors.New("config: token TTL must be positive")
	}
	if c.MinApprovals < 1 {
		return errors.New("config: minimum approvals must be at least 1")
	}
	if c.LockoutThreshold < 1 {
		return errors.New("config: lockout threshold must be at least 1")
	}
	return nil
}

// TokenTTL returns the access token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// LockoutDuration returns how long an account stays locked after repeated
// login failures.
func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutMinutes) * time.Minute
}

// ExternalTimeout bounds every call to the external review system.
func (c *Config) ExternalTimeout() time.Duration {
	return time.Duration(c.ExternalTimeoutSeconds) * time.Second
}
