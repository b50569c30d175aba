package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	HostURL     string `envconfig:"HOST_URL" default:"https://www.gufengmh8.com/"`
	ResourceURL string `envconfig:"RESOURCE_URL" default:"https://res.gufengmh8.com/"`
	PathSegment string `envconfig:"PATH_SEGMENT" default:"manhua"`

	TargetDir   string        `envconfig:"TARGET_DIR" default:"."`
	Mode        string        `envconfig:"MODE" default:"parallel"`
	MaxParallel int           `envconfig:"MAX_PARALLEL" default:"10"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	UserAgent   string        `envconfig:"USER_AGENT"`

	// Temporary page files older than this are removed before a run.
	PartialMaxAge time.Duration `envconfig:"PARTIAL_MAX_AGE" default:"1h"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	ErrorLogPath      string `envconfig:"ERROR_LOG_PATH" default:"error.log"`
	DBPath            string `envconfig:"DB_PATH" default:"comic_downloader.db"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"false"`
		ServiceName  string `split_words:"true" default:"comic_downloader"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values envconfig cannot check on its own.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"HOST_URL": c.HostURL, "RESOURCE_URL": c.ResourceURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q: expected an absolute URL", name, raw)
		}
	}

	if c.MaxParallel <= 0 {
		return fmt.Errorf("invalid MAX_PARALLEL %d: must be positive", c.MaxParallel)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid HTTP_TIMEOUT %s: must be positive", c.HTTPTimeout)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
