package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/irfndi/transit-flow/internal/models"
	"github.com/irfndi/transit-flow/internal/training"
)

// BacktestStep compares one forecast day with what was observed
type BacktestStep struct {
	Step      int       `json:"step"`
	Day       time.Time `json:"day"`
	Actual    int       `json:"actual"`
	Predicted int       `json:"predicted"`
	AbsError  int       `json:"abs_error"`
}

// BacktestResult shows how error compounds along a recursive horizon
type BacktestResult struct {
	Forecast *models.ForecastResult `json:"forecast"`
	Steps    []BacktestStep         `json:"steps"`
	MAE      float64                `json:"mae"`
}

// Backtest forecasts a window whose ridership is already known. Only the
// three days before the window are fed to the model; the observed values
// inside the window are used for scoring.
func (f *Forecaster) Backtest(ctx context.Context, model *training.TrainedModel, table []models.FeatureDay, req Request) (*BacktestResult, error) {
	if req.Start.IsZero() {
		return nil, fmt.Errorf("%w: backtest needs an explicit start", ErrStartNotFound)
	}
	rows, start, err := window(table, req)
	if err != nil {
		return nil, err
	}
	for i := 0; i < req.Horizon; i++ {
		if !rows[start+i].Known() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTruth, rows[start+i].Day.Format("2006-01-02"))
		}
	}

	fc, err := f.Forecast(ctx, model, rows, req)
	if err != nil {
		return nil, err
	}

	res := &BacktestResult{Forecast: fc, Steps: make([]BacktestStep, len(fc.Points))}
	var total float64
	for i, p := range fc.Points {
		actual := *rows[start+i].Y
		abs := int(math.Abs(float64(actual - p.PredictedY)))
		res.Steps[i] = BacktestStep{Step: i + 1, Day: p.Day, Actual: actual, Predicted: p.PredictedY, AbsError: abs}
		total += float64(abs)
	}
	res.MAE = total / float64(len(res.Steps))
	return res, nil
}
