package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/features"
	"github.com/irfndi/transit-flow/internal/models"
	"github.com/irfndi/transit-flow/internal/training"
)

var (
	ErrInvalidHorizon = errors.New("horizon must be at least 1")
	ErrStartNotFound  = errors.New("start day not in feature table")
	ErrNoUnknownDays  = errors.New("feature table has no day with unknown ridership")
	ErrHorizonTooLong = errors.New("feature table does not cover the horizon")
	ErrUnknownTruth   = errors.New("backtest needs observed ridership for every horizon day")
)

// Request selects the forecast window. A zero Start begins at the first
// table row whose ridership is unknown.
type Request struct {
	Horizon int
	Start   time.Time
}

// Forecaster produces multi-day forecasts where each predicted day feeds
// the moving average of the days after it.
type Forecaster struct {
	logger *logrus.Logger
	now    func() time.Time
}

func NewForecaster(logger *logrus.Logger) *Forecaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Forecaster{logger: logger, now: time.Now}
}

// Forecast predicts req.Horizon consecutive days. The three days before the
// first forecast day must have known ridership. Predictions are kept in a
// private arena so the caller's table is never modified. An encoding error
// aborts the call without a partial result.
func (f *Forecaster) Forecast(ctx context.Context, model *training.TrainedModel, table []models.FeatureDay, req Request) (*models.ForecastResult, error) {
	rows, start, err := window(table, req)
	if err != nil {
		return nil, err
	}

	arena := make([]float64, features.Window+req.Horizon)
	for i := 0; i < features.Window; i++ {
		arena[i] = float64(*rows[start-features.Window+i].Y)
	}

	result := &models.ForecastResult{
		Model:       model.Name,
		GeneratedAt: f.now().UTC(),
		Points:      make([]models.ForecastPoint, 0, req.Horizon),
	}
	for i := 0; i < req.Horizon; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := rows[start+i]
		rec := models.DailyRecord{
			Day:             models.TruncateDay(row.Day),
			Weekday:         row.Weekday,
			Month:           row.Month,
			IsHoliday:       row.IsHoliday,
			WeatherCategory: models.NormalizeWeather(row.WeatherCategory),
			MeanTemp:        row.MeanTemp,
			MovingAverage:   features.TrailingMean(arena, features.Window+i),
		}
		pred, err := model.PredictRecord(rec)
		if err != nil {
			return nil, err
		}
		y := math.Max(math.Round(pred), 0)
		arena[features.Window+i] = y

		result.Points = append(result.Points, models.ForecastPoint{
			Day:        rec.Day,
			Weekday:    rec.Weekday,
			Month:      rec.Month,
			PredictedY: int(y),
		})
	}

	f.logger.WithFields(logrus.Fields{
		"component": "forecaster",
		"model":     model.Name,
		"start":     result.Points[0].Day.Format("2006-01-02"),
		"horizon":   req.Horizon,
	}).Debug("Forecast generated")
	return result, nil
}

// NextUnknownDay is the day a zero-Start request begins at: the earliest
// table row whose ridership is unknown.
func NextUnknownDay(table []models.FeatureDay) (time.Time, error) {
	var next time.Time
	for _, r := range table {
		if !r.Known() && (next.IsZero() || r.Day.Before(next)) {
			next = r.Day
		}
	}
	if next.IsZero() {
		return time.Time{}, ErrNoUnknownDays
	}
	return models.TruncateDay(next), nil
}

// window sorts a copy of table and locates the first forecast row. The
// history rows and every horizon row must be calendar-consecutive.
func window(table []models.FeatureDay, req Request) ([]models.FeatureDay, int, error) {
	if req.Horizon < 1 {
		return nil, 0, fmt.Errorf("%w: got %d", ErrInvalidHorizon, req.Horizon)
	}

	rows := make([]models.FeatureDay, len(table))
	copy(rows, table)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Day.Before(rows[j].Day) })

	start := -1
	if req.Start.IsZero() {
		for i, r := range rows {
			if !r.Known() {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, 0, ErrNoUnknownDays
		}
	} else {
		want := models.TruncateDay(req.Start)
		for i, r := range rows {
			if models.TruncateDay(r.Day).Equal(want) {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, 0, fmt.Errorf("%w: %s", ErrStartNotFound, want.Format("2006-01-02"))
		}
	}

	startDay := models.TruncateDay(rows[start].Day)
	available := 0
	for k := 1; k <= features.Window; k++ {
		i := start - k
		if i < 0 || !rows[i].Known() || !models.TruncateDay(rows[i].Day).Equal(startDay.AddDate(0, 0, -k)) {
			break
		}
		available++
	}
	if available < features.Window {
		return nil, 0, &features.DataGapError{Day: startDay, Available: available}
	}

	if start+req.Horizon > len(rows) {
		return nil, 0, fmt.Errorf("%w: %d rows from %s, need %d", ErrHorizonTooLong,
			len(rows)-start, startDay.Format("2006-01-02"), req.Horizon)
	}
	for i := 1; i < req.Horizon; i++ {
		if !models.TruncateDay(rows[start+i].Day).Equal(startDay.AddDate(0, 0, i)) {
			return nil, 0, fmt.Errorf("%w: missing %s", ErrHorizonTooLong, startDay.AddDate(0, 0, i).Format("2006-01-02"))
		}
	}
	return rows, start, nil
}
