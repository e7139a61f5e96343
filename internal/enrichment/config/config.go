package config

import (
	"fmt"
	"time"

	"geostory-pipeline/internal/entity"
	"geostory-pipeline/pkg/config"
)

// Enrichment holds worker and retry configuration for the pipeline.
type Enrichment struct {
	Workers            int           `mapstructure:"workers"`
	StreamBlockTimeout time.Duration `mapstructure:"stream_block_timeout"`
	TaskTimeout        time.Duration `mapstructure:"task_timeout"`
	RetryInterval      time.Duration `mapstructure:"retry_interval"`
	// MaxIdleDuration is the visibility timeout: a claimed, unacked message
	// becomes reclaimable after sitting idle this long.
	MaxIdleDuration time.Duration `mapstructure:"max_idle_duration"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	// Scorer selects the scoring variant: "model" or "human".
	Scorer string `mapstructure:"scorer"`
}

// Extractor holds the configuration for the NLP entity extraction service.
type Extractor struct {
	BaseURL             string   `mapstructure:"base_url"`
	APIKey              string   `mapstructure:"api_key"`
	RelevanceThreshold  float64  `mapstructure:"relevance_threshold"`
	AcceptedTypes       []string `mapstructure:"accepted_types"`
	Stoplist            []string `mapstructure:"stoplist"`
	MaxRequestPerMinute int      `mapstructure:"max_request_per_minute"`
}

// Geocoder holds the configuration for the geocoding service.
type Geocoder struct {
	BaseURL             string        `mapstructure:"base_url"`
	APIKey              string        `mapstructure:"api_key"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
}

// Model holds the configuration for the bag-of-words relevance model.
type Model struct {
	Path            string  `mapstructure:"path"`
	AcceptThreshold float64 `mapstructure:"accept_threshold"`
}

// Telegram holds configuration for dead-letter alerting.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the enrichment service.
type Config struct {
	App        config.App      `mapstructure:"app"`
	Logger     config.Logger   `mapstructure:"logger"`
	Database   config.Database `mapstructure:"database"`
	Redis      config.Redis    `mapstructure:"redis"`
	Enrichment Enrichment      `mapstructure:"enrichment"`
	Extractor  Extractor       `mapstructure:"extractor"`
	Geocoder   Geocoder        `mapstructure:"geocoder"`
	Model      Model           `mapstructure:"model"`
	Telegram   Telegram        `mapstructure:"telegram"`
}

// Load loads the enrichment configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Enrichment.Workers <= 0 {
		c.Enrichment.Workers = 1
	}
	if c.Enrichment.StreamBlockTimeout <= 0 {
		c.Enrichment.StreamBlockTimeout = 2 * time.Second
	}
	if c.Enrichment.TaskTimeout <= 0 {
		c.Enrichment.TaskTimeout = 2 * time.Minute
	}
	if c.Enrichment.RetryInterval <= 0 {
		c.Enrichment.RetryInterval = 30 * time.Second
	}
	if c.Enrichment.MaxIdleDuration <= 0 {
		c.Enrichment.MaxIdleDuration = 5 * time.Minute
	}
	if c.Enrichment.MaxAttempts <= 0 {
		c.Enrichment.MaxAttempts = 5
	}
	if c.Enrichment.BackoffBase <= 0 {
		c.Enrichment.BackoffBase = 5 * time.Second
	}
	if c.Enrichment.BackoffMax <= 0 {
		c.Enrichment.BackoffMax = 10 * time.Minute
	}
	if c.Extractor.RelevanceThreshold <= 0 {
		c.Extractor.RelevanceThreshold = 0.3
	}
	if len(c.Extractor.AcceptedTypes) == 0 {
		c.Extractor.AcceptedTypes = []string{"Facility", "GeographicFeature", "NaturalEvent"}
	}
	if c.Model.AcceptThreshold <= 0 {
		c.Model.AcceptThreshold = 0.7
	}
	if c.Enrichment.Scorer == "" {
		c.Enrichment.Scorer = string(entity.ScorerKindModel)
	}
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
	if c.Extractor.BaseURL == "" {
		return fmt.Errorf("extractor.base_url is required")
	}
	if c.Extractor.APIKey == "" {
		return fmt.Errorf("extractor.api_key is required")
	}
	if c.Geocoder.BaseURL == "" {
		return fmt.Errorf("geocoder.base_url is required")
	}
	if c.Geocoder.APIKey == "" {
		return fmt.Errorf("geocoder.api_key is required")
	}
	switch entity.ScorerKind(c.Enrichment.Scorer) {
	case entity.ScorerKindModel:
		if c.Model.Path == "" {
			return fmt.Errorf("model.path is required when the model scorer is selected")
		}
	case entity.ScorerKindHuman:
	default:
		return fmt.Errorf("enrichment.scorer must be %q or %q", entity.ScorerKindModel, entity.ScorerKindHuman)
	}
	return nil
}
