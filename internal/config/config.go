// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig            `mapstructure:"server"`
	Ingest  IngestConfig            `mapstructure:"ingest"`
	Scraper ScraperConfig           `mapstructure:"scraper"`
	Storage StorageConfig           `mapstructure:"storage"`
	Media   MediaConfig             `mapstructure:"media"`
	DB      DBConfig                `mapstructure:"db"`
	PubSub  PubSubConfig            `mapstructure:"pubsub"`
	Webhook WebhookConfig           `mapstructure:"webhook"`
	Logging LoggingConfig           `mapstructure:"logging"`
	Targets []pipeline.ScrapeTarget `mapstructure:"targets"`
}

// ServerConfig controls the webhook/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// IngestConfig governs the local image ingestion pass.
type IngestConfig struct {
	InputDir     string `mapstructure:"input_dir"`
	OutputDir    string `mapstructure:"output_dir"`
	MinImageSize int    `mapstructure:"min_image_size"`
	JPEGQuality  int    `mapstructure:"jpeg_quality"`
	Workers      int    `mapstructure:"workers"`
}

// ScraperConfig governs the polite web scraping pass.
type ScraperConfig struct {
	OutputDir          string   `mapstructure:"output_dir"`
	ConcurrentRequests int      `mapstructure:"concurrent_requests"`
	DelayMinSeconds    float64  `mapstructure:"delay_min_seconds"`
	DelayMaxSeconds    float64  `mapstructure:"delay_max_seconds"`
	TimeoutSeconds     int      `mapstructure:"timeout_seconds"`
	UserAgents         []string `mapstructure:"user_agents"`
}

// StorageConfig selects and parameterizes the blob store.
type StorageConfig struct {
	// Backend is one of gcs, local, none.
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// MediaConfig identifies the transform-and-host account.
type MediaConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
}

// DBConfig controls access to the media item record store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for event publishing and consumption.
type PubSubConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	IngestTopic     string `mapstructure:"ingest_topic"`
	CompletionTopic string `mapstructure:"completion_topic"`
	// EventSubscription feeds the mediaflow worker with storage object
	// notifications.
	EventSubscription string `mapstructure:"event_subscription"`
}

// WebhookConfig holds the shared secret for signed notifications.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Unknown keys in the config
// file are ignored.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JEWELRY")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.input_dir", "raw_data")
	v.SetDefault("ingest.output_dir", "processed_datasets")
	v.SetDefault("ingest.min_image_size", 512)
	v.SetDefault("ingest.jpeg_quality", 95)
	v.SetDefault("ingest.workers", 0)
	v.SetDefault("scraper.output_dir", "scraped_data")
	v.SetDefault("scraper.concurrent_requests", 5)
	v.SetDefault("scraper.delay_min_seconds", 1.0)
	v.SetDefault("scraper.delay_max_seconds", 3.0)
	v.SetDefault("scraper.timeout_seconds", 15)
	v.SetDefault("scraper.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	})
	v.SetDefault("storage.backend", "none")
	v.SetDefault("db.table", "media_items")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Ingest.MinImageSize <= 0 {
		return fmt.Errorf("ingest.min_image_size must be > 0")
	}
	if c.Ingest.JPEGQuality < 1 || c.Ingest.JPEGQuality > 100 {
		return fmt.Errorf("ingest.jpeg_quality must be in [1, 100]")
	}
	if c.Scraper.ConcurrentRequests <= 0 {
		return fmt.Errorf("scraper.concurrent_requests must be > 0")
	}
	if c.Scraper.DelayMinSeconds < 0 || c.Scraper.DelayMaxSeconds < c.Scraper.DelayMinSeconds {
		return fmt.Errorf("scraper delay range [%v, %v] is invalid",
			c.Scraper.DelayMinSeconds, c.Scraper.DelayMaxSeconds)
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case "none":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	for i, target := range c.Targets {
		if target.BaseURL == "" {
			return fmt.Errorf("targets[%d].base_url is required", i)
		}
		if target.Selectors.Image == "" || target.Selectors.Title == "" || target.Selectors.Price == "" {
			return fmt.Errorf("targets[%d] must configure image, title and price selectors", i)
		}
	}
	return nil
}

// ScrapeDelayRange converts the configured seconds into durations.
func (c Config) ScrapeDelayRange() (time.Duration, time.Duration) {
	return time.Duration(c.Scraper.DelayMinSeconds * float64(time.Second)),
		time.Duration(c.Scraper.DelayMaxSeconds * float64(time.Second))
}

// RequestTimeout converts the configured seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}
