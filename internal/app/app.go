// Package app assembles the pipeline service and its collaborators from
// configuration. Both the HTTP server and the pipeline CLI start here.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/analytics"
	"github.com/irfndi/transit-flow/internal/api/handlers"
	"github.com/irfndi/transit-flow/internal/cache"
	"github.com/irfndi/transit-flow/internal/config"
	"github.com/irfndi/transit-flow/internal/csvsource"
	"github.com/irfndi/transit-flow/internal/database"
	"github.com/irfndi/transit-flow/internal/notify"
	"github.com/irfndi/transit-flow/internal/pipeline"
	"github.com/irfndi/transit-flow/internal/store"
	"github.com/irfndi/transit-flow/internal/training"
)

// App holds the wired services. Close releases every connection it opened.
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Pipeline  *pipeline.Service
	Analytics *analytics.Service
	Source    pipeline.HistorySource
	// Repository is set only for the postgres source
	Repository *database.HistoryRepository
	// CSV is set only for the csv source
	CSV    *csvsource.Source
	Cache  *cache.RedisForecastCache
	Checks []handlers.NamedCheck

	closers []func()
}

// New connects to whatever the configuration asks for. On error every
// connection opened so far is closed again.
func New(cfg *config.Config, logger *logrus.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var rc *database.RedisClient
	if cfg.Store.Backend == "redis" || cfg.Cache.Enabled {
		rc, err = database.NewRedisConnection(cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		a.Checks = append(a.Checks, handlers.NamedCheck{Name: "redis", Checker: rc})
	}

	if err := a.openSource(); err != nil {
		return nil, err
	}

	modelStore, err := a.openStore(rc)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Dependencies{
		Source:  a.Source,
		Store:   modelStore,
		Trainer: training.NewTrainer(logger, diagnosticSink(cfg.Training)),
		Logger:  logger,
	}
	if cfg.Cache.Enabled {
		a.Cache = cache.NewRedisForecastCache(rc.Client, cfg.Cache.TTLDuration(), logger)
		deps.Cache = a.Cache
	}
	if cfg.Telegram.BotToken != "" {
		notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.WithError(err).Warn("Telegram notifications disabled")
		} else {
			deps.Notifier = notifier
		}
	}

	from, to, err := cfg.Training.HistoryRange()
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipeline.NewService(deps, pipeline.Config{
		TrainRatio: cfg.Training.TrainRatio,
		Tune:       cfg.Training.Tune,
		CV: training.CVConfig{
			Folds:      cfg.Training.CVFolds,
			MaxWorkers: training.WorkerLimit(cfg.Training.MaxWorkers),
		},
		HistoryFrom: from,
		HistoryTo:   to,
	})
	a.Analytics = analytics.NewService(a.Source, logger)
	return a, nil
}

func (a *App) openSource() error {
	cfg := a.Config
	switch cfg.Source.Kind {
	case "csv":
		a.CSV = csvsource.New(csvsource.Options{Dir: cfg.Source.CSVDir, Encoding: cfg.Source.CSVEncoding})
		a.Source = a.CSV
	case "postgres":
		db, err := database.NewPostgresConnection(&cfg.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.Repository = database.NewHistoryRepository(db.Pool)
		guarded := database.NewGuardedRepository(a.Repository, &cfg.Database, a.Logger)
		a.Source = guarded
		a.Checks = append(a.Checks, handlers.NamedCheck{Name: "database", Checker: guarded})
	default:
		return fmt.Errorf("unknown source.kind %q", cfg.Source.Kind)
	}
	return nil
}

func (a *App) openStore(rc *database.RedisClient) (store.Store, error) {
	cfg := a.Config.Store
	switch cfg.Backend {
	case "file":
		return store.NewFileStore(cfg.Dir)
	case "redis":
		return store.NewRedisStore(rc.Client, cfg.RedisPrefix), nil
	case "badger":
		db, err := store.OpenBadger(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := db.Close(); err != nil {
				a.Logger.WithError(err).Warn("Failed to close badger store")
			}
		})
		return store.NewBadgerStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store.backend %q", cfg.Backend)
	}
}

func diagnosticSink(cfg config.TrainingConfig) training.DiagnosticSink {
	if !cfg.Diagnostics || cfg.DiagnosticsDir == "" {
		return nil
	}
	return &training.FileSink{Dir: cfg.DiagnosticsDir}
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
