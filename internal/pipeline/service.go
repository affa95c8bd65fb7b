package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/irfndi/transit-flow/internal/dataset"
	"github.com/irfndi/transit-flow/internal/features"
	"github.com/irfndi/transit-flow/internal/forecast"
	"github.com/irfndi/transit-flow/internal/gbm"
	"github.com/irfndi/transit-flow/internal/logging"
	"github.com/irfndi/transit-flow/internal/metrics"
	"github.com/irfndi/transit-flow/internal/models"
	"github.com/irfndi/transit-flow/internal/store"
	"github.com/irfndi/transit-flow/internal/telemetry"
	"github.com/irfndi/transit-flow/internal/training"
	"github.com/irfndi/transit-flow/internal/tuning"
)

// Config controls how models are trained
type Config struct {
	TrainRatio  float64
	Tune        bool
	Grid        tuning.Grid
	CV          training.CVConfig
	HistoryFrom time.Time
	HistoryTo   time.Time
}

// TrainOptions override Config for a single training call
type TrainOptions struct {
	Tune       *bool
	TrainRatio float64
}

// TrainOutcome describes a finished training run
type TrainOutcome struct {
	RunID   string                 `json:"run_id"`
	Model   *training.TrainedModel `json:"-"`
	Report  *training.Report       `json:"report"`
	Tuning  *tuning.Result         `json:"tuning,omitempty"`
	Records int                    `json:"records"`
	Gaps    int                    `json:"gaps"`
}

// Dependencies are the collaborators of a Service. Notifier and Cache may
// be nil.
type Dependencies struct {
	Source   HistorySource
	Store    store.Store
	Trainer  *training.Trainer
	Notifier Notifier
	Cache    ForecastCache
	Logger   *logrus.Logger
}

// Service trains, stores and forecasts with passenger-flow models
type Service struct {
	source     HistorySource
	store      store.Store
	trainer    *training.Trainer
	notifier   Notifier
	cache      ForecastCache
	builder    *features.Builder
	tuner      *tuning.Tuner
	forecaster *forecast.Forecaster
	logger     *logrus.Logger
	cfg        Config
	inflight   singleflight.Group
}

func NewService(deps Dependencies, cfg Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	trainer := deps.Trainer
	if trainer == nil {
		trainer = training.NewTrainer(logger, nil)
	}
	if cfg.TrainRatio == 0 {
		cfg.TrainRatio = dataset.DefaultTrainRatio
	}
	if cfg.Grid == nil {
		cfg.Grid = tuning.DefaultGrid()
	}
	return &Service{
		source:     deps.Source,
		store:      deps.Store,
		trainer:    trainer,
		notifier:   deps.Notifier,
		cache:      deps.Cache,
		builder:    features.NewBuilder(logger),
		tuner:      tuning.NewTuner(logger),
		forecaster: forecast.NewForecaster(logger),
		logger:     logger,
		cfg:        cfg,
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// StationModelName is the store name of a station's model. ASCII names
// become a lower-case slug; names with other characters, or none at all,
// also carry an FNV-32a hash of the trimmed name so distinct stations never
// share a model.
func StationModelName(station string) string {
	station = strings.TrimSpace(station)
	slug := strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(station), "_"), "_")
	if slug != "" && !hasNonASCII(station) {
		return "station_" + slug
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(station))
	suffix := fmt.Sprintf("%08x", h.Sum32())
	if slug == "" {
		return "station_" + suffix
	}
	return "station_" + slug + "_" + suffix
}

func hasNonASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return true
		}
	}
	return false
}

// Train builds features from the network-wide history, optionally tunes,
// fits and stores the model under name. An existing artifact is replaced.
func (s *Service) Train(ctx context.Context, name string, opts TrainOptions) (*TrainOutcome, error) {
	run := newRun(s.logger, name, s.cfg.CV)
	ctx, span := telemetry.StartRunSpan(ctx, "train", run.ID, name)
	outcome, err := s.train(ctx, run, opts, s.dayFlowRecords)
	telemetry.EndSpan(span, err)
	return outcome, err
}

// ForecastDayFlow forecasts network-wide daily ridership. A stored model is
// used as is; when none exists one is trained and saved first.
func (s *Service) ForecastDayFlow(ctx context.Context, name string, req forecast.Request) (*models.ForecastResult, error) {
	return s.forecastWith(ctx, name, req, s.dayFlowRecords, func(ctx context.Context) ([]models.FeatureDay, error) {
		return s.source.FeatureTable(ctx, s.cfg.HistoryFrom, time.Time{})
	})
}

// ForecastStation forecasts a single station using its own model, trained
// on the station's counts laid over the shared feature table.
func (s *Service) ForecastStation(ctx context.Context, station string, req forecast.Request) (*models.ForecastResult, error) {
	return s.forecastWith(ctx, StationModelName(station), req, s.stationRecords(station), s.stationTable(station))
}

// TrainStation trains and stores the model of one station
func (s *Service) TrainStation(ctx context.Context, station string, opts TrainOptions) (*TrainOutcome, error) {
	name := StationModelName(station)
	run := newRun(s.logger, name, s.cfg.CV)
	ctx, span := telemetry.StartRunSpan(ctx, "train", run.ID, name, attribute.String("station", station))
	outcome, err := s.train(ctx, run, opts, s.stationRecords(station))
	telemetry.EndSpan(span, err)
	return outcome, err
}

// Model returns the stored model called name
func (s *Service) Model(ctx context.Context, name string) (*training.TrainedModel, error) {
	return s.store.Load(ctx, name)
}

// Invalidate deletes a stored model so the next forecast retrains it
func (s *Service) Invalidate(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.invalidateCache(ctx, name)
	s.logger.WithFields(logrus.Fields{"component": "pipeline", "model": name}).Info("Model invalidated")
	return nil
}

type recordSource func(ctx context.Context) (*features.Result, error)

type tableSource func(ctx context.Context) ([]models.FeatureDay, error)

func (s *Service) dayFlowRecords(ctx context.Context) (*features.Result, error) {
	from, to := s.cfg.HistoryFrom, s.cfg.HistoryTo
	counts, err := s.source.DailyCounts(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily counts: %w", err)
	}
	holidays, err := s.source.Holidays(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}
	weather, err := s.source.Weather(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load weather: %w", err)
	}
	return s.builder.Build(counts, holidays, weather)
}

func (s *Service) stationTable(station string) tableSource {
	return func(ctx context.Context) ([]models.FeatureDay, error) {
		table, err := s.source.FeatureTable(ctx, s.cfg.HistoryFrom, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("failed to load feature table: %w", err)
		}
		counts, err := s.source.StationCounts(ctx, station, s.cfg.HistoryFrom, s.cfg.HistoryTo)
		if err != nil {
			return nil, fmt.Errorf("failed to load counts for station %s: %w", station, err)
		}
		return features.OverlayCounts(table, counts), nil
	}
}

func (s *Service) stationRecords(station string) recordSource {
	table := s.stationTable(station)
	return func(ctx context.Context) (*features.Result, error) {
		rows, err := table(ctx)
		if err != nil {
			return nil, err
		}
		return s.builder.FromFeatureTable(rows)
	}
}

func (s *Service) forecastWith(ctx context.Context, name string, req forecast.Request, records recordSource, table tableSource) (*models.ForecastResult, error) {
	run := newRun(s.logger, name, s.cfg.CV)
	ctx, span := telemetry.StartRunSpan(ctx, "forecast", run.ID, name, attribute.Int("forecast.horizon", req.Horizon))
	result, err := s.forecast(ctx, run, req, records, table)
	metrics.RecordForecast(name, req.Horizon, err)
	telemetry.EndSpan(span, err)
	return result, err
}

func (s *Service) forecast(ctx context.Context, run *Run, req forecast.Request, records recordSource, table tableSource) (*models.ForecastResult, error) {
	var rows []models.FeatureDay
	cacheStart := req.Start
	if s.cache != nil {
		// Cached windows are keyed by their first day so an open-ended
		// request moves on once new ridership is recorded.
		if cacheStart.IsZero() {
			var err error
			if rows, err = table(ctx); err != nil {
				return nil, err
			}
			if cacheStart, err = forecast.NextUnknownDay(rows); err != nil {
				return nil, err
			}
		}
		if cached, ok := s.cache.Get(ctx, run.Model, cacheStart, req.Horizon); ok {
			run.Log.Debug("Forecast served from cache")
			return cached, nil
		}
	}

	model, err := s.ensureModel(ctx, run, records)
	if err != nil {
		return nil, err
	}

	if rows == nil {
		if rows, err = table(ctx); err != nil {
			return nil, err
		}
	}
	result, err := s.forecaster.Forecast(ctx, model, rows, req)
	if err != nil {
		return nil, err
	}
	result.RunID = run.ID

	if s.cache != nil {
		s.cache.Set(ctx, run.Model, cacheStart, req.Horizon, result)
	}
	logging.LogPipelineEvent(run.Log, "forecast", logrus.Fields{
		"horizon": result.Len(),
		"start":   result.Points[0].Day.Format("2006-01-02"),
	})
	return result, nil
}

// ensureModel loads the stored model or trains one. Concurrent callers
// asking for the same missing model share a single training run.
func (s *Service) ensureModel(ctx context.Context, run *Run, records recordSource) (*training.TrainedModel, error) {
	exists, err := s.store.Exists(ctx, run.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to check model %s: %w", run.Model, err)
	}
	if exists {
		metrics.RecordTraining(run.Model, "skipped", 0, 0)
		run.Log.Debug("Using stored model")
		return s.store.Load(ctx, run.Model)
	}

	v, err, _ := s.inflight.Do(run.Model, func() (interface{}, error) {
		return s.train(ctx, run, TrainOptions{}, records)
	})
	if err != nil {
		if insufficientHistory(err) {
			return nil, &ModelNotFoundError{Name: run.Model, Cause: err}
		}
		return nil, err
	}
	return v.(*TrainOutcome).Model, nil
}

// insufficientHistory reports whether a training failure was caused by the
// history itself being too short or too gappy to fit a model.
func insufficientHistory(err error) bool {
	var gap *features.DataGapError
	return errors.As(err, &gap) ||
		errors.Is(err, dataset.ErrEmpty) ||
		errors.Is(err, dataset.ErrInsufficientRows)
}

func (s *Service) train(ctx context.Context, run *Run, opts TrainOptions, records recordSource) (outcome *TrainOutcome, err error) {
	defer func() {
		if err != nil {
			metrics.RecordTraining(run.Model, "failed", 0, 0)
			run.Log.WithError(err).Error("Training failed")
		}
	}()

	built, err := records(ctx)
	if err != nil {
		return nil, err
	}
	metrics.DataGaps.Add(float64(len(built.Gaps)))

	ds, err := dataset.Assemble(built.Records)
	if err != nil {
		return nil, err
	}
	ratio := s.cfg.TrainRatio
	if opts.TrainRatio != 0 {
		ratio = opts.TrainRatio
	}
	train, test, err := ds.Split(ratio)
	if err != nil {
		return nil, err
	}

	tune := s.cfg.Tune
	if opts.Tune != nil {
		tune = *opts.Tune
	}

	outcome = &TrainOutcome{RunID: run.ID, Records: len(built.Records), Gaps: len(built.Gaps)}
	params := gbm.TunedParams()
	if tune {
		res, err := s.tuner.Tune(ctx, train, s.cfg.Grid, gbm.BaselineParams(), run.CV)
		if err != nil {
			return nil, fmt.Errorf("tuning failed: %w", err)
		}
		for i, step := range res.Steps {
			metrics.RecordTuningCandidates(step.Param, len(s.cfg.Grid[i].Values)-step.Failed, step.Failed)
		}
		params = res.Params
		outcome.Tuning = res
	}

	model, report, err := s.trainer.Train(ctx, run.Model, train, test, params, run.CV)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, run.Model, model); err != nil {
		return nil, fmt.Errorf("failed to save model %s: %w", run.Model, err)
	}
	s.invalidateCache(ctx, run.Model)

	outcome.Model = model
	outcome.Report = report
	metrics.RecordTraining(run.Model, "trained", time.Since(run.Started), report.MAE)
	logging.LogPipelineEvent(run.Log, "trained", logrus.Fields{
		"records": outcome.Records,
		"gaps":    outcome.Gaps,
		"tuned":   tune,
		"mae":     report.MAE,
	})

	if s.notifier != nil {
		if err := s.notifier.NotifyTrained(ctx, outcome); err != nil {
			run.Log.WithError(err).Warn("Failed to send training notification")
		}
	}
	return outcome, nil
}

func (s *Service) invalidateCache(ctx context.Context, name string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateModel(ctx, name); err != nil {
		s.logger.WithError(err).WithField("model", name).Warn("Failed to invalidate forecast cache")
	}
}
