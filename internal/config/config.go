package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Source names for the upstream arrival feed.
const (
	SourceDataMall = "datamall"
	SourceGTFSRT   = "gtfsrt"
)

// Config holds all configuration for the monitor service. Values come
// from an optional YAML file, overridden by environment variables.
type Config struct {
	DatabasePath string `yaml:"database_path" validate:"required"`
	StopsFile    string `yaml:"stops_file" validate:"required"`

	PollIntervalSeconds int `yaml:"poll_interval_seconds" validate:"min=1"`
	LookbackHours       int `yaml:"lookback_hours" validate:"min=1"`
	AlertMaxAgeHours    int `yaml:"alert_max_age_hours" validate:"min=1"`

	FeedSource       string `yaml:"feed_source" validate:"oneof=datamall gtfsrt"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_seconds" validate:"min=1"`
	FetchConcurrency int    `yaml:"fetch_concurrency" validate:"min=1"`

	DataMall DataMallConfig `yaml:"datamall"`
	GTFSRT   GTFSRTConfig   `yaml:"gtfsrt"`
	Email    EmailConfig    `yaml:"email"`

	MetricsListen string `yaml:"metrics_listen"`
}

// DataMallConfig configures the JSON arrival feed client.
type DataMallConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// GTFSRTConfig configures the GTFS-RT trip updates feed adapter.
type GTFSRTConfig struct {
	TripUpdatesURL string `yaml:"trip_updates_url"`
}

// EmailConfig configures the SendGrid notification channel. Email is
// optional: with an empty API key or recipient the channel is disabled.
type EmailConfig struct {
	APIKey string `yaml:"api_key"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
}

// Load reads configuration from the YAML file at path (skipped when
// empty), applies environment variable overrides, fills defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DatabasePath:        "/data/transit_watch.db",
		StopsFile:           "/data/monitored_stops.json",
		PollIntervalSeconds: 300,
		LookbackHours:       24,
		AlertMaxAgeHours:    2,
		FeedSource:          SourceDataMall,
		FetchTimeoutSecs:    10,
		FetchConcurrency:    4,
		DataMall: DataMallConfig{
			BaseURL: "https://datamall2.mytransport.sg/ltaodataservice/BusArrivalv2",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.DatabasePath = getEnv("SQLITE_DATABASE", cfg.DatabasePath)
	cfg.StopsFile = getEnv("MONITORED_STOPS_FILE", cfg.StopsFile)
	cfg.PollIntervalSeconds = getEnvInt("POLL_INTERVAL", cfg.PollIntervalSeconds)
	cfg.LookbackHours = getEnvInt("LOOKBACK_HOURS", cfg.LookbackHours)
	cfg.AlertMaxAgeHours = getEnvInt("ALERT_MAX_AGE_HOURS", cfg.AlertMaxAgeHours)
	cfg.FeedSource = getEnv("FEED_SOURCE", cfg.FeedSource)
	cfg.DataMall.BaseURL = getEnv("DATAMALL_BASE_URL", cfg.DataMall.BaseURL)
	cfg.DataMall.APIKey = getEnv("DATAMALL_API_KEY", cfg.DataMall.APIKey)
	cfg.GTFSRT.TripUpdatesURL = getEnv("GTFS_TRIP_UPDATES_URL", cfg.GTFSRT.TripUpdatesURL)
	cfg.Email.APIKey = getEnv("SENDGRID_API_KEY", cfg.Email.APIKey)
	cfg.Email.From = getEnv("ALERT_EMAIL_FROM", cfg.Email.From)
	cfg.Email.To = getEnv("ALERT_EMAIL_TO", cfg.Email.To)
	cfg.MetricsListen = getEnv("METRICS_LISTEN", cfg.MetricsListen)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// PollInterval returns the cycle interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FetchTimeout returns the per-stop fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// AlertMaxAge returns the auto-resolve age threshold as a duration.
func (c *Config) AlertMaxAge() time.Duration {
	return time.Duration(c.AlertMaxAgeHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
