package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for the config file when --config is not given.
const DefaultPath = "config.yaml"

// Sentiment providers.
const (
	ProviderLexicon   = "lexicon"
	ProviderAnthropic = "anthropic"
)

// MaxRetentionDays caps database.retention_days at a century.
const MaxRetentionDays = 36500

// Config holds all service settings, read from a YAML file and overridden by
// environment variables.
type Config struct {
	Cities          []string        `yaml:"cities"`
	API             APIConfig       `yaml:"api"`
	Database        DatabaseConfig  `yaml:"database"`
	Logging         LoggingConfig   `yaml:"logging"`
	Sentiment       SentimentConfig `yaml:"sentiment"`
	Transform       TransformConfig `yaml:"transform"`
	Kafka           KafkaConfig     `yaml:"kafka"`
	HTTP            HTTPConfig      `yaml:"http"`
	Schedule        ScheduleConfig  `yaml:"schedule"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
}

// APIConfig configures the OpenWeatherMap client.
type APIConfig struct {
	OpenWeatherMapKey string        `yaml:"openweathermap_key"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Geocode           bool          `yaml:"geocode"`
	GeocodeCacheSize  int           `yaml:"geocode_cache_size"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type LoggingConfig struct {
	File   string `yaml:"file"`
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SentimentConfig selects the classifier. Texts replaces the built-in sample
// corpus when non-empty.
type SentimentConfig struct {
	Provider     string   `yaml:"provider"`
	AnthropicKey string   `yaml:"anthropic_key"`
	Model        string   `yaml:"model"`
	Texts        []string `yaml:"texts"`
}

type TransformConfig struct {
	City             string        `yaml:"city"`
	Alignment        string        `yaml:"alignment"`
	Tolerance        time.Duration `yaml:"tolerance"`
	SentimentFactor  string        `yaml:"sentiment_factor"`
	AnomalyDetection bool          `yaml:"anomaly_detection"`
	Contamination    float64       `yaml:"contamination"`
	Seed             uint64        `yaml:"seed"`
}

// KafkaConfig enables the sample publisher when both fields are set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether derived samples should be published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type ScheduleConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		Cities: []string{"Toronto"},
		API: APIConfig{
			BaseURL:           "https://api.openweathermap.org",
			Timeout:           10 * time.Second,
			RequestsPerMinute: 60,
			GeocodeCacheSize:  128,
		},
		Database: DatabaseConfig{
			Path:          "data/urban_pulse.db",
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sentiment: SentimentConfig{
			Provider: ProviderLexicon,
			Model:    "claude-haiku-4-5",
		},
		Transform: TransformConfig{
			Alignment:        "positional",
			Tolerance:        30 * time.Minute,
			SentimentFactor:  "label",
			AnomalyDetection: true,
			Contamination:    0.1,
			Seed:             42,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Schedule: ScheduleConfig{
			Interval:   time.Hour,
			Retries:    1,
			RetryDelay: 5 * time.Minute,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads the YAML file at path over the defaults, then applies environment
// overrides and validates the result. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.API.OpenWeatherMapKey = sharedcfg.EnvOrDefault("OPENWEATHERMAP_KEY", c.API.OpenWeatherMapKey)
	c.Database.Path = sharedcfg.EnvOrDefault("URBAN_PULSE_DB", c.Database.Path)
	c.Logging.Level = sharedcfg.EnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = sharedcfg.EnvOrDefault("LOG_FORMAT", c.Logging.Format)
	c.Logging.File = sharedcfg.EnvOrDefault("LOG_FILE", c.Logging.File)
	c.HTTP.Addr = sharedcfg.EnvOrDefault("HTTP_ADDR", c.HTTP.Addr)
	c.Kafka.Topic = sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", c.Kafka.Topic)
	c.Sentiment.AnthropicKey = sharedcfg.EnvOrDefault("ANTHROPIC_API_KEY", c.Sentiment.AnthropicKey)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = sharedcfg.ParseBrokers(v)
	}
	if os.Getenv("SHUTDOWN_TIMEOUT") != "" {
		d, err := sharedcfg.ParseShutdownTimeout()
		if err != nil {
			return err
		}
		c.ShutdownTimeout = d
	}
	return nil
}

// Validate checks every setting and names the offending key on failure.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Cities) == 0 {
		add("cities: at least one city is required")
	}
	for i, city := range c.Cities {
		if strings.TrimSpace(city) == "" {
			add("cities[%d]: must not be blank", i)
		}
	}
	if c.API.BaseURL == "" {
		add("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		add("api.timeout must be positive")
	}
	if c.API.RequestsPerMinute <= 0 {
		add("api.requests_per_minute must be positive")
	}
	if c.API.Geocode && c.API.GeocodeCacheSize <= 0 {
		add("api.geocode_cache_size must be positive when api.geocode is enabled")
	}
	if c.Database.Path == "" {
		add("database.path is required")
	}
	if c.Database.RetentionDays < 0 || c.Database.RetentionDays > MaxRetentionDays {
		add("database.retention_days must be in [0, %d]", MaxRetentionDays)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		add("logging.format %q is not one of json, text", c.Logging.Format)
	}
	switch c.Sentiment.Provider {
	case ProviderLexicon:
	case ProviderAnthropic:
		if c.Sentiment.AnthropicKey == "" {
			add("sentiment.anthropic_key is required for provider %q", ProviderAnthropic)
		}
		if c.Sentiment.Model == "" {
			add("sentiment.model is required for provider %q", ProviderAnthropic)
		}
	default:
		add("sentiment.provider %q is not one of %s, %s", c.Sentiment.Provider, ProviderLexicon, ProviderAnthropic)
	}
	switch c.Transform.Alignment {
	case "positional":
	case "nearest":
		if c.Transform.Tolerance <= 0 {
			add("transform.tolerance must be positive for nearest alignment")
		}
	default:
		add("transform.alignment %q is not one of positional, nearest", c.Transform.Alignment)
	}
	if c.Transform.SentimentFactor != "label" && c.Transform.SentimentFactor != "raw" {
		add("transform.sentiment_factor %q is not one of label, raw", c.Transform.SentimentFactor)
	}
	if c.Transform.AnomalyDetection && (c.Transform.Contamination <= 0 || c.Transform.Contamination > 0.5) {
		add("transform.contamination must be in (0, 0.5]")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		add("kafka.topic is required when kafka.brokers is set")
	}
	if c.Schedule.Interval <= 0 {
		add("schedule.interval must be positive")
	}
	if c.Schedule.Retries < 0 {
		add("schedule.retries must not be negative")
	}
	if c.Schedule.RetryDelay < 0 {
		add("schedule.retry_delay must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		add("shutdown_timeout must be positive")
	}

	return errors.Join(errs...)
}
