package config

import (
	"fmt"

	"geostory-pipeline/pkg/config"
)

// NewsAPI holds the configuration for the news source API.
type NewsAPI struct {
	BaseURL             string   `mapstructure:"base_url"`
	APIKey              string   `mapstructure:"api_key"`
	Outlets             []string `mapstructure:"outlets"`
	WindowDays          int      `mapstructure:"window_days"`
	MaxRequestPerMinute int      `mapstructure:"max_request_per_minute"`
}

// RSS holds the configuration for RSS feed sources.
type RSS struct {
	FeedURLs []string `mapstructure:"feed_urls"`
}

// Intake holds collector-specific configuration.
type Intake struct {
	CronSchedule string `mapstructure:"cron_schedule"`
	SeenTTLDays  int    `mapstructure:"seen_ttl_days"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
}

// Config holds the full configuration for the intake service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	Intake   Intake          `mapstructure:"intake"`
	NewsAPI  NewsAPI         `mapstructure:"newsapi"`
	RSS      RSS             `mapstructure:"rss"`
}

// Load loads the intake configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on missing required values so the process exits at
// startup rather than at first use.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if len(c.NewsAPI.Outlets) > 0 && c.NewsAPI.APIKey == "" {
		return fmt.Errorf("newsapi.api_key is required when newsapi outlets are configured")
	}
	if len(c.NewsAPI.Outlets) == 0 && len(c.RSS.FeedURLs) == 0 {
		return fmt.Errorf("at least one news source (newsapi.outlets or rss.feed_urls) is required")
	}
	if c.Intake.CronSchedule == "" {
		return fmt.Errorf("intake.cron_schedule is required")
	}
	return nil
}
