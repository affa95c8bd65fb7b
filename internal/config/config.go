package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Store       StoreConfig     `mapstructure:"store"`
	Source      SourceConfig    `mapstructure:"source"`
	Training    TrainingConfig  `mapstructure:"training"`
	Forecast    ForecastConfig  `mapstructure:"forecast"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AdminAPIKey    string   `mapstructure:"admin_api_key" json:"-"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
	// Consecutive failed reads that open the breaker around the database
	BreakerThreshold uint32 `mapstructure:"breaker_threshold"`
	BreakerTimeout   string `mapstructure:"breaker_timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StoreConfig selects where trained models live
type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	BadgerDir   string `mapstructure:"badger_dir"`
}

// SourceConfig selects where ridership history is read from
type SourceConfig struct {
	Kind        string `mapstructure:"kind"`
	CSVDir      string `mapstructure:"csv_dir"`
	CSVEncoding string `mapstructure:"csv_encoding"`
}

type TrainingConfig struct {
	ModelName      string  `mapstructure:"model_name"`
	TrainRatio     float64 `mapstructure:"train_ratio"`
	Tune           bool    `mapstructure:"tune"`
	CVFolds        int     `mapstructure:"cv_folds"`
	MaxWorkers     int     `mapstructure:"max_workers"`
	HistoryFrom    string  `mapstructure:"history_from"`
	HistoryTo      string  `mapstructure:"history_to"`
	Diagnostics    bool    `mapstructure:"diagnostics"`
	DiagnosticsDir string  `mapstructure:"diagnostics_dir"`
}

type ForecastConfig struct {
	Horizon int    `mapstructure:"horizon"`
	Start   string `mapstructure:"start"`
}

// CacheConfig controls the Redis cache in front of forecast results
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	TTL     string `mapstructure:"ttl"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// DateLayout is the layout of every day-valued setting
const DateLayout = "2006-01-02"

// HistoryRange parses training.history_from and training.history_to. Empty
// values are returned as zero times.
func (c TrainingConfig) HistoryRange() (from, to time.Time, err error) {
	if c.HistoryFrom != "" {
		if from, err = time.Parse(DateLayout, c.HistoryFrom); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid training.history_from: %w", err)
		}
	}
	if c.HistoryTo != "" {
		if to, err = time.Parse(DateLayout, c.HistoryTo); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid training.history_to: %w", err)
		}
	}
	return from, to, nil
}

// StartDay parses forecast.start; an empty value is the zero time
func (c ForecastConfig) StartDay() (time.Time, error) {
	if c.Start == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse(DateLayout, c.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid forecast.start: %w", err)
	}
	return day, nil
}

func (c CacheConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0
	}
	return d
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("server.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Environment != "test" && c.Server.AdminAPIKey == "" {
		return errors.New("ADMIN_API_KEY environment variable is required in non-development environments")
	}

	switch c.Store.Backend {
	case "file", "redis", "badger":
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Source.Kind {
	case "postgres", "csv":
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	switch c.Telemetry.Exporter {
	case "stdout", "otlp", "none":
	default:
		return fmt.Errorf("unknown telemetry.exporter %q", c.Telemetry.Exporter)
	}

	if c.Training.TrainRatio <= 0 || c.Training.TrainRatio >= 1 {
		return fmt.Errorf("training.train_ratio must be in (0, 1), got %v", c.Training.TrainRatio)
	}
	if c.Training.CVFolds < 2 {
		return fmt.Errorf("training.cv_folds must be at least 2, got %d", c.Training.CVFolds)
	}
	if c.Forecast.Horizon < 1 {
		return fmt.Errorf("forecast.horizon must be at least 1, got %d", c.Forecast.Horizon)
	}
	if _, _, err := c.Training.HistoryRange(); err != nil {
		return err
	}
	if _, err := c.Forecast.StartDay(); err != nil {
		return err
	}
	if c.Cache.Enabled {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("invalid cache.ttl: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.admin_api_key", "")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "transit_flow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")
	v.SetDefault("database.breaker_threshold", 5)
	v.SetDefault("database.breaker_timeout", "30s")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Model store
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.dir", "data/models")
	v.SetDefault("store.redis_prefix", "model:")
	v.SetDefault("store.badger_dir", "data/badger")

	// History source
	v.SetDefault("source.kind", "postgres")
	v.SetDefault("source.csv_dir", "csv_data")
	v.SetDefault("source.csv_encoding", "utf-8")

	// Training
	v.SetDefault("training.model_name", "day_flow")
	v.SetDefault("training.train_ratio", 0.9)
	v.SetDefault("training.tune", false)
	v.SetDefault("training.cv_folds", 5)
	v.SetDefault("training.max_workers", 0)
	v.SetDefault("training.history_from", "")
	v.SetDefault("training.history_to", "")
	v.SetDefault("training.diagnostics", true)
	v.SetDefault("training.diagnostics_dir", "data/diagnostics")

	// Forecast
	v.SetDefault("forecast.horizon", 7)
	v.SetDefault("forecast.start", "")

	// Forecast cache
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "1h")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "transit-flow")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)
}
