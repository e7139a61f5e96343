package config

import (
	"geostory-pipeline/pkg/config"
)

// Review holds knobs specific to the human-review flow.
type Review struct {
	AcceptThreshold float64 `mapstructure:"accept_threshold"`
}

// Config holds the full configuration for the review service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	API      config.API      `mapstructure:"api"`
	Review   Review          `mapstructure:"review"`
}

// Load loads the review configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Review.AcceptThreshold <= 0 {
		cfg.Review.AcceptThreshold = 0.7
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on missing required values.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	return c.API.Validate()
}
