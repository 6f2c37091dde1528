// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	DB         DBConfig         `mapstructure:"db"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Taxonomy   TaxonomyConfig   `mapstructure:"taxonomy"`
	SizeGroups SizeGroupsConfig `mapstructure:"sizegroups"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ScraperConfig governs scheduler and entity scraper behavior.
type ScraperConfig struct {
	TargetsFile         string `mapstructure:"targets_file"`
	UserAgent           string `mapstructure:"user_agent"`
	PageSize            int    `mapstructure:"page_size"`
	MaxPages            int    `mapstructure:"max_pages"`
	EmptyPageThreshold  int    `mapstructure:"empty_page_threshold"`
	PageWorkers         int    `mapstructure:"page_workers"`
	CollectionWorkers   int    `mapstructure:"collection_workers"`
	InterShopDelaySec   int    `mapstructure:"inter_shop_delay_seconds"`
	RespectRobots       bool   `mapstructure:"respect_robots"`
	VerificationTTLDays int    `mapstructure:"verification_ttl_days"`
}

// HTTPConfig configures the shared HTTP client and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// RateLimitConfig bounds the adaptive per-shop delay controller.
type RateLimitConfig struct {
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_seconds"`
}

// StorageConfig selects and parameterizes the blob store for batch files.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// TaxonomyConfig parameterizes the taxonomy matching job.
type TaxonomyConfig struct {
	SourceURL       string  `mapstructure:"source_url"`
	MinDepth        int     `mapstructure:"min_depth"`
	MaxDepth        int     `mapstructure:"max_depth"`
	PreferredDepth  int     `mapstructure:"preferred_depth"`
	Threshold       float64 `mapstructure:"threshold"`
	EmbeddingModel  string  `mapstructure:"embedding_model"`
	EmbeddingAPIKey string  `mapstructure:"embedding_api_key"`
	EmbeddingURL    string  `mapstructure:"embedding_url"`
	BatchSize       int     `mapstructure:"batch_size"`
}

// SizeGroupsConfig parameterizes the size-group matching job.
type SizeGroupsConfig struct {
	BatchSize    int    `mapstructure:"batch_size"`
	UnknownLabel string `mapstructure:"unknown_label"`
}

// PubSubConfig holds metadata for batch-completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig toggles the /metrics endpoint served during long runs.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.user_agent", "catalog-crawler/1.0")
	v.SetDefault("scraper.page_size", 250)
	v.SetDefault("scraper.max_pages", 200)
	v.SetDefault("scraper.empty_page_threshold", 2)
	v.SetDefault("scraper.page_workers", 3)
	v.SetDefault("scraper.collection_workers", 4)
	v.SetDefault("scraper.inter_shop_delay_seconds", 2)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.verification_ttl_days", 7)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("ratelimit.base_delay_ms", 500)
	v.SetDefault("ratelimit.max_delay_ms", 60000)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.prefix", "staging")
	v.SetDefault("taxonomy.source_url",
		"https://www.google.com/basepages/producttype/taxonomy.en-US.txt")
	v.SetDefault("taxonomy.min_depth", 2)
	v.SetDefault("taxonomy.max_depth", 4)
	v.SetDefault("taxonomy.preferred_depth", 3)
	v.SetDefault("taxonomy.threshold", 0.45)
	v.SetDefault("taxonomy.embedding_model", "text-embedding-3-small")
	v.SetDefault("taxonomy.embedding_url", "https://api.openai.com/v1/embeddings")
	v.SetDefault("taxonomy.batch_size", 100)
	v.SetDefault("sizegroups.batch_size", 500)
	v.SetDefault("sizegroups.unknown_label", "Unknown")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.PageSize <= 0 {
		return fmt.Errorf("scraper.page_size must be > 0")
	}
	if c.Scraper.PageWorkers <= 0 {
		return fmt.Errorf("scraper.page_workers must be > 0")
	}
	if c.Scraper.EmptyPageThreshold <= 0 {
		return fmt.Errorf("scraper.empty_page_threshold must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.RateLimit.BaseDelayMs <= 0 || c.RateLimit.MaxDelayMs < c.RateLimit.BaseDelayMs {
		return fmt.Errorf("ratelimit delays must satisfy 0 < base <= max")
	}
	if c.Storage.Provider != "local" && c.Storage.Provider != "gcs" {
		return fmt.Errorf("storage.provider must be local or gcs")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
	}
	if c.Taxonomy.MinDepth <= 0 || c.Taxonomy.MaxDepth < c.Taxonomy.MinDepth {
		return fmt.Errorf("taxonomy depths must satisfy 0 < min <= max")
	}
	if c.Taxonomy.Threshold <= 0 || c.Taxonomy.Threshold >= 1 {
		return fmt.Errorf("taxonomy.threshold must be in (0, 1)")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BaseDelay returns the rate controller floor as a duration.
func (c Config) BaseDelay() time.Duration {
	return time.Duration(c.RateLimit.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the rate controller ceiling as a duration.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.RateLimit.MaxDelayMs) * time.Millisecond
}
