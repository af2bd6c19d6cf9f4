// Package config loads the framework configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level framework configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Remoting RemotingConfig `yaml:"remoting"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_sec"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RemotingConfig configures the remoting bridge.
type RemotingConfig struct {
	Path    string `yaml:"path"`     // mount path of the remoting handler
	BaseURL string `yaml:"base_url"` // client-side endpoint base URL
}

// AuthConfig configures the JWT auth middleware.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Secret    string   `yaml:"secret"`
	SkipPaths []string `yaml:"skip_paths"`
}

// LimitsConfig configures per-client rate limiting.
type LimitsConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 15,
			ShutdownSec:     10,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Remoting: RemotingConfig{
			Path: "/remoting",
		},
		Limits: LimitsConfig{RequestsPerSecond: 50, Burst: 100},
	}
}

// Load reads configuration from the given path. A .env file alongside the
// process, if any, is loaded first so the environment overrides below see it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration or falls back to defaults if the
// file does not exist.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = Default()
		applyEnvOverrides(cfg)
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRELLIS_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TRELLIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRELLIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRELLIS_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("TRELLIS_REMOTING_BASE_URL"); v != "" {
		cfg.Remoting.BaseURL = v
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth: secret is required when auth is enabled")
	}
	if c.Limits.RequestsPerSecond < 0 || c.Limits.Burst < 0 {
		return fmt.Errorf("limits: negative rate limit values")
	}
	if c.Remoting.Path == "" {
		c.Remoting.Path = "/remoting"
	}
	return nil
}
