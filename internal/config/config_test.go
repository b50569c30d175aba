package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://www.gufengmh8.com/", cfg.HostURL)
	assert.Equal(t, "https://res.gufengmh8.com/", cfg.ResourceURL)
	assert.Equal(t, "manhua", cfg.PathSegment)
	assert.Equal(t, ".", cfg.TargetDir)
	assert.Equal(t, "parallel", cfg.Mode)
	assert.Equal(t, 10, cfg.MaxParallel)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, time.Hour, cfg.PartialMaxAge)
	assert.Equal(t, "error.log", cfg.ErrorLogPath)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "comic_downloader", cfg.Telemetry.ServiceName)
	assert.Equal(t, "0.0.0.0:9091", cfg.Web.BindAddress)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("HOST_URL", "http://mirror.local/")
	t.Setenv("TARGET_DIR", "/data/comics")
	t.Setenv("MODE", "sequential")
	t.Setenv("MAX_PARALLEL", "4")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("TELEMETRY_ENABLED", "true")
	t.Setenv("TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("WEB_BIND_ADDRESS", "127.0.0.1:9000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://mirror.local/", cfg.HostURL)
	assert.Equal(t, "/data/comics", cfg.TargetDir)
	assert.Equal(t, "sequential", cfg.Mode)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "127.0.0.1:9000", cfg.Web.BindAddress)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"relative host", "HOST_URL", "www.gufengmh8.com"},
		{"relative resource", "RESOURCE_URL", "/res"},
		{"zero workers", "MAX_PARALLEL", "0"},
		{"not a number", "MAX_PARALLEL", "ten"},
		{"negative timeout", "HTTP_TIMEOUT", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}
