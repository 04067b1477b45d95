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
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig carries the default crawl request parameters.
type CrawlerConfig struct {
	StartURL     string `mapstructure:"start_url"`
	MaxPages     int    `mapstructure:"max_pages"`
	DelaySeconds int    `mapstructure:"delay_seconds"`
	Deep         bool   `mapstructure:"deep"`
}

// BrowserConfig configures the headless Chrome sessions.
type BrowserConfig struct {
	ChromePath           string `mapstructure:"chrome_path"`
	Headless             bool   `mapstructure:"headless"`
	UserAgent            string `mapstructure:"user_agent"`
	WindowWidth          int    `mapstructure:"window_width"`
	WindowHeight         int    `mapstructure:"window_height"`
	NavTimeoutSeconds    int    `mapstructure:"nav_timeout_seconds"`
	ConsentTimeoutSec    int    `mapstructure:"consent_timeout_seconds"`
	PaginationTimeoutSec int    `mapstructure:"pagination_timeout_seconds"`
}

// DBConfig controls the persistence backend.
type DBConfig struct {
	// Provider is "postgres" or "memory".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// ArchiveConfig sets where raw listing HTML snapshots go.
type ArchiveConfig struct {
	// Provider is "local", "gcs" or "none".
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// WorkerConfig controls the periodic crawl scheduler.
type WorkerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
	RunOnStart      bool `mapstructure:"run_on_start"`
}

// PublisherConfig holds metadata for run completion notifications.
type PublisherConfig struct {
	// Provider is "pubsub" or "none".
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("crawler.start_url", "https://suchen.mobile.de/fahrzeuge/search.html?isSearchRequest=true&s=Car&vc=Car")
	v.SetDefault("crawler.max_pages", 5)
	v.SetDefault("crawler.delay_seconds", 2)
	v.SetDefault("crawler.deep", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.consent_timeout_seconds", 5)
	v.SetDefault("browser.pagination_timeout_seconds", 10)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.interval_minutes", 60)
	v.SetDefault("worker.run_on_start", false)
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.StartURL == "" {
		return fmt.Errorf("crawler.start_url must be set")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("db.provider must be postgres or memory")
	}
	switch c.Archive.Provider {
	case "none":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider must be local, gcs or none")
	}
	switch c.Publisher.Provider {
	case "none":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.TopicName == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic_name must be set when publisher.provider is pubsub")
		}
	default:
		return fmt.Errorf("publisher.provider must be pubsub or none")
	}
	if c.Worker.Enabled && c.Worker.IntervalMinutes <= 0 {
		return fmt.Errorf("worker.interval_minutes must be > 0 when the worker is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// Delay returns the inter-page delay as a duration.
func (c CrawlerConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// Interval returns the scheduler interval as a duration.
func (c WorkerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
