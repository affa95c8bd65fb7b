package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/transit-flow/internal/config"
	"github.com/irfndi/transit-flow/internal/forecast"
	"github.com/irfndi/transit-flow/internal/pipeline"
	"github.com/irfndi/transit-flow/internal/testutil"
)

var firstDay = testutil.DefaultStart

func writeHistory(t *testing.T, known, future int) string {
	return testutil.WriteHistory(t, testutil.History{Known: known, Future: future})
}

func testConfig(t *testing.T, csvDir string) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Source:      config.SourceConfig{Kind: "csv", CSVDir: csvDir},
		Store:       config.StoreConfig{Backend: "file", Dir: filepath.Join(t.TempDir(), "models")},
		Training: config.TrainingConfig{
			ModelName:      "day_flow",
			TrainRatio:     0.8,
			CVFolds:        3,
			MaxWorkers:     2,
			Diagnostics:    true,
			DiagnosticsDir: filepath.Join(t.TempDir(), "diagnostics"),
		},
		Forecast: config.ForecastConfig{Horizon: 7},
		Cache:    config.CacheConfig{TTL: "1h"},
	}
}

func TestNew_CSVSourceEndToEnd(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := testConfig(t, writeHistory(t, 60, 10))

	a, err := New(cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.CSV)
	assert.Nil(t, a.Repository)
	assert.Nil(t, a.Cache)
	assert.Empty(t, a.Checks)

	result, err := a.Pipeline.ForecastDayFlow(context.Background(), "day_flow", forecast.Request{Horizon: 5})
	require.NoError(t, err)
	require.Len(t, result.Points, 5)
	assert.Equal(t, firstDay.AddDate(0, 0, 60), result.Points[0].Day)
	for _, p := range result.Points {
		assert.GreaterOrEqual(t, p.PredictedY, 0)
	}

	assert.FileExists(t, filepath.Join(cfg.Training.DiagnosticsDir, "day_flow.diagnostics.json"))

	months, err := a.Analytics.Monthly(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, "2021-03", months[0].Month)
	assert.Equal(t, 31, months[0].Days)
}

func TestNew_RedisBackedStoreAndCache(t *testing.T) {
	mr, redisCfg := testutil.NewRedis(t)

	logger, _ := test.NewNullLogger()
	cfg := testConfig(t, writeHistory(t, 60, 10))
	cfg.Redis = redisCfg
	cfg.Store = config.StoreConfig{Backend: "redis", RedisPrefix: "model:"}
	cfg.Cache = config.CacheConfig{Enabled: true, TTL: "1h"}
	cfg.Training.Diagnostics = false

	a, err := New(cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Cache)
	require.Len(t, a.Checks, 1)
	assert.Equal(t, "redis", a.Checks[0].Name)
	assert.NoError(t, a.Checks[0].Checker.HealthCheck(context.Background()))

	ctx := context.Background()
	first, err := a.Pipeline.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 3})
	require.NoError(t, err)
	assert.True(t, mr.Exists("model:day_flow"))

	second, err := a.Pipeline.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 3})
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, int64(1), a.Cache.GetStats().Hits)
}

func TestNew_BadgerStore(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := testConfig(t, writeHistory(t, 60, 10))
	cfg.Store = config.StoreConfig{Backend: "badger", BadgerDir: filepath.Join(t.TempDir(), "badger")}

	a, err := New(cfg, logger)
	require.NoError(t, err)

	outcome, err := a.Pipeline.Train(context.Background(), "day_flow", pipeline.TrainOptions{})
	require.NoError(t, err)
	assert.Equal(t, "day_flow", outcome.Model.Name)

	loaded, err := a.Pipeline.Model(context.Background(), "day_flow")
	require.NoError(t, err)
	assert.Equal(t, outcome.Model.TrainingRows, loaded.TrainingRows)
	a.Close()
}

func TestNew_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg := testConfig(t, t.TempDir())
	cfg.Source.Kind = "sqlite"
	_, err := New(cfg, logger)
	assert.ErrorContains(t, err, "unknown source.kind")

	cfg = testConfig(t, t.TempDir())
	cfg.Store.Backend = "s3"
	_, err = New(cfg, logger)
	assert.ErrorContains(t, err, "unknown store.backend")

	cfg = testConfig(t, t.TempDir())
	cfg.Cache.Enabled = true
	cfg.Redis = config.RedisConfig{Host: "127.0.0.1", Port: 1}
	_, err = New(cfg, logger)
	assert.ErrorContains(t, err, "failed to connect to Redis")
}

func TestNew_TelegramMisconfiguredIsNotFatal(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cfg := testConfig(t, t.TempDir())
	cfg.Telegram = config.TelegramConfig{BotToken: "token"}

	a, err := New(cfg, logger)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Telegram notifications disabled", hook.LastEntry().Message)
}
