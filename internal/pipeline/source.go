package pipeline

import (
	"context"
	"time"

	"github.com/irfndi/transit-flow/internal/models"
)

// HistorySource supplies the raw inputs of a run. A zero from or to leaves
// that end of the range open.
type HistorySource interface {
	DailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCount, error)
	Holidays(ctx context.Context, from, to time.Time) ([]models.HolidayFlag, error)
	Weather(ctx context.Context, from, to time.Time) ([]models.WeatherObservation, error)
	FeatureTable(ctx context.Context, from, to time.Time) ([]models.FeatureDay, error)
	StationCounts(ctx context.Context, station string, from, to time.Time) ([]models.DailyCount, error)
}

// Notifier is told about freshly trained models
type Notifier interface {
	NotifyTrained(ctx context.Context, outcome *TrainOutcome) error
}

// ForecastCache short-circuits repeated forecast requests
type ForecastCache interface {
	Get(ctx context.Context, model string, start time.Time, horizon int) (*models.ForecastResult, bool)
	Set(ctx context.Context, model string, start time.Time, horizon int, result *models.ForecastResult)
	InvalidateModel(ctx context.Context, model string) error
}
