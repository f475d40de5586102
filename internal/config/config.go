// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-rp.
//
// go-webauthn-rp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads server configuration from a YAML file with
// WEBAUTHN_* environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Keys      KeysConfig      `mapstructure:"keys"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Secret    SecretConfig    `mapstructure:"secret"`
	Token     TokenConfig     `mapstructure:"token"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig controls bearer token authentication of API routes.
type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	Burst          int  `mapstructure:"burst"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// KeysConfig controls the key lifecycle service.
type KeysConfig struct {
	// Store selects the key store backend: memory or vault.
	Store string `mapstructure:"store"`

	// Lifetime is how long a generated key remains current.
	Lifetime time.Duration `mapstructure:"lifetime"`
}

// VaultConfig contains HashiCorp Vault settings for the vault key store.
type VaultConfig struct {
	Address       string `mapstructure:"address"`
	Token         string `mapstructure:"token"`
	Namespace     string `mapstructure:"namespace"`
	Mount         string `mapstructure:"mount"`
	Prefix        string `mapstructure:"prefix"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
}

// SecretConfig controls at-rest encryption of persisted key material.
type SecretConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Passphrase string `mapstructure:"passphrase"`
	Salt       string `mapstructure:"salt"`
}

// TokenConfig controls the token service.
type TokenConfig struct {
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Lifetime time.Duration `mapstructure:"lifetime"`
}

// Load reads configuration from a YAML file and applies WEBAUTHN_*
// environment variable overrides. An empty path loads defaults and
// environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("WEBAUTHN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8443)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.enabled", true)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_min", 600)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("keys.store", "memory")
	v.SetDefault("keys.lifetime", 30*24*time.Hour)

	v.SetDefault("vault.mount", "secret")
	v.SetDefault("vault.prefix", "webauthn-keys")

	v.SetDefault("token.issuer", "go-webauthn-rp")
	v.SetDefault("token.lifetime", 300*time.Second)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Keys.Store {
	case "memory":
	case "vault":
		if c.Vault.Address == "" {
			return fmt.Errorf("vault address is required for the vault key store")
		}
		if c.Vault.Token == "" {
			return fmt.Errorf("vault token is required for the vault key store")
		}
	default:
		return fmt.Errorf("invalid key store: %s (must be memory or vault)", c.Keys.Store)
	}

	if c.Keys.Lifetime <= 0 {
		return fmt.Errorf("key lifetime must be positive")
	}

	if c.Secret.Enabled && c.Secret.Passphrase == "" {
		return fmt.Errorf("secret passphrase is required when at-rest encryption is enabled")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	if c.Token.Issuer == "" {
		return fmt.Errorf("token issuer must be specified")
	}
	if c.Token.Lifetime <= 0 {
		return fmt.Errorf("token lifetime must be positive")
	}

	return nil
}
