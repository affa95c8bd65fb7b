package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no config file is found
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_WithDefaults(t *testing.T) {
	chdirTemp(t)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "transit_flow", config.Database.DBName)
	assert.Equal(t, 6379, config.Redis.Port)
	assert.Equal(t, "file", config.Store.Backend)
	assert.Equal(t, "postgres", config.Source.Kind)
	assert.Equal(t, "day_flow", config.Training.ModelName)
	assert.Equal(t, 0.9, config.Training.TrainRatio)
	assert.Equal(t, 5, config.Training.CVFolds)
	assert.False(t, config.Training.Tune)
	assert.Equal(t, 7, config.Forecast.Horizon)
	assert.Equal(t, "none", config.Telemetry.Exporter)
	assert.Equal(t, time.Hour, config.Cache.TTLDuration())
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("ADMIN_API_KEY", "secret")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("SOURCE_KIND", "csv")
	t.Setenv("SOURCE_CSV_DIR", "/data/csv")
	t.Setenv("TRAINING_TUNE", "true")
	t.Setenv("TRAINING_HISTORY_FROM", "2020-01-01")
	t.Setenv("FORECAST_HORIZON", "14")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "secret", config.Server.AdminAPIKey)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "redis", config.Store.Backend)
	assert.Equal(t, "csv", config.Source.Kind)
	assert.Equal(t, "/data/csv", config.Source.CSVDir)
	assert.True(t, config.Training.Tune)
	assert.Equal(t, 14, config.Forecast.Horizon)
	assert.Equal(t, int64(-100123), config.Telegram.ChatID)

	from, to, err := config.Training.HistoryRange()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.True(t, to.IsZero())
}

func TestLoad_FromFile(t *testing.T) {
	chdirTemp(t)
	yaml := []byte("store:\n  backend: badger\nforecast:\n  horizon: 3\n  start: \"2021-02-01\"\n")
	require.NoError(t, os.WriteFile("config.yaml", yaml, 0o644))

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "badger", config.Store.Backend)
	assert.Equal(t, 3, config.Forecast.Horizon)

	start, err := config.Forecast.StartDay()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestLoad_RequiresAdminKeyOutsideDevelopment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_API_KEY")
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"store backend", func(c *Config) { c.Store.Backend = "s3" }, "store.backend"},
		{"source kind", func(c *Config) { c.Source.Kind = "excel" }, "source.kind"},
		{"exporter", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
		{"train ratio", func(c *Config) { c.Training.TrainRatio = 1 }, "train_ratio"},
		{"folds", func(c *Config) { c.Training.CVFolds = 1 }, "cv_folds"},
		{"horizon", func(c *Config) { c.Forecast.Horizon = 0 }, "forecast.horizon"},
		{"history", func(c *Config) { c.Training.HistoryTo = "01/02/2020" }, "history_to"},
		{"start", func(c *Config) { c.Forecast.Start = "tomorrow" }, "forecast.start"},
		{"cache ttl", func(c *Config) { c.Cache.Enabled = true; c.Cache.TTL = "soon" }, "cache.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
