// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration. Values come from the optional YAML
// config file, with environment variables taking precedence.
type Config struct {
	Port                   string `yaml:"port"`
	DatabaseURL            string `yaml:"database_url"`
	RedisURL               string `yaml:"redis_url"`
	PricingConfigFile      string `yaml:"pricing_config_file"`
	SnapshotRefreshSeconds int    `yaml:"snapshot_refresh_seconds"`

	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// AnthropicConfig configures the LLM provider.
type AnthropicConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SnapshotRefresh returns the governance snapshot refresh interval.
func (c *Config) SnapshotRefresh() time.Duration {
	if c.SnapshotRefreshSeconds <= 0 {
		return 0
	}
	return time.Duration(c.SnapshotRefreshSeconds) * time.Second
}

// LoadConfig reads the YAML file named by CONFIG_FILE (when set) and applies
// environment variable overrides.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port: "8090",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg.Port, "PORT")
	applyEnv(&cfg.DatabaseURL, "DATABASE_URL")
	applyEnv(&cfg.RedisURL, "REDIS_URL")
	applyEnv(&cfg.PricingConfigFile, "PRICING_CONFIG_FILE")
	applyEnv(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	applyEnv(&cfg.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")
	applyEnv(&cfg.Anthropic.Model, "ANTHROPIC_MODEL")

	return cfg, nil
}

func applyEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}
