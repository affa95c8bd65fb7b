package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/transit-flow/internal/dataset"
	"github.com/irfndi/transit-flow/internal/features"
	"github.com/irfndi/transit-flow/internal/gbm"
	"github.com/irfndi/transit-flow/internal/models"
	"github.com/irfndi/transit-flow/internal/training"
)

var day0 = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// thresholdModel predicts low when the moving average is at least 100 and
// high otherwise, so every step depends on the predictions before it.
func thresholdModel(high, low float64) *training.TrainedModel {
	schema := dataset.SchemaFromVocabulary([]string{"rain", "sunny"})
	return &training.TrainedModel{
		Name:   "day_flow",
		Params: gbm.TunedParams(),
		Schema: schema,
		Regressor: &gbm.Regressor{
			Features: schema.Width(),
			Trees: []gbm.Tree{{Nodes: []gbm.Node{
				{Feature: 4, Threshold: 100, Left: 1, Right: 2},
				{Leaf: true, Value: high},
				{Leaf: true, Value: low},
			}}},
		},
	}
}

func intPtr(v int) *int { return &v }

func table(known []int, unknown int) []models.FeatureDay {
	rows := make([]models.FeatureDay, 0, len(known)+unknown)
	for i := 0; i < len(known)+unknown; i++ {
		d := day0.AddDate(0, 0, i)
		row := models.FeatureDay{
			Day:             d,
			Weekday:         models.ISOWeekday(d),
			Month:           int(d.Month()),
			WeatherCategory: " Sunny",
			MeanTemp:        4,
		}
		if i < len(known) {
			row.Y = intPtr(known[i])
		}
		rows = append(rows, row)
	}
	return rows
}

func newForecaster() *Forecaster {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return NewForecaster(l)
}

func TestForecast_FeedsPredictionsBack(t *testing.T) {
	tbl := table([]int{60, 60, 60}, 5)
	res, err := newForecaster().Forecast(context.Background(), thresholdModel(150.5, 30.4), tbl, Request{Horizon: 5})
	require.NoError(t, err)

	require.Equal(t, 5, res.Len())
	assert.Equal(t, []int{151, 151, 30, 30, 151}, res.Values())
	assert.Equal(t, "day_flow", res.Model)
	assert.Equal(t, day0.AddDate(0, 0, 3), res.Points[0].Day)
	assert.Equal(t, day0.AddDate(0, 0, 7), res.Points[4].Day)

	for _, row := range tbl[3:] {
		assert.Nil(t, row.Y)
	}
}

func TestForecast_ExplicitStartIgnoresKnownHorizonValues(t *testing.T) {
	tbl := table([]int{60, 60, 60, 500, 500, 500}, 0)
	res, err := newForecaster().Forecast(context.Background(), thresholdModel(150.5, 30.4), tbl,
		Request{Horizon: 3, Start: day0.AddDate(0, 0, 3)})
	require.NoError(t, err)
	assert.Equal(t, []int{151, 151, 30}, res.Values())
	assert.Equal(t, 500, *tbl[3].Y)
}

func TestForecast_ClampsNegativePredictions(t *testing.T) {
	res, err := newForecaster().Forecast(context.Background(), thresholdModel(-5, -5), table([]int{1, 2, 3}, 2), Request{Horizon: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, res.Values())
}

func TestForecast_UnseenWeatherAborts(t *testing.T) {
	tbl := table([]int{60, 60, 60}, 3)
	tbl[4].WeatherCategory = "sandstorm"

	res, err := newForecaster().Forecast(context.Background(), thresholdModel(150, 30), tbl, Request{Horizon: 3})
	assert.Nil(t, res)
	var mismatch *dataset.EncodingMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "sandstorm", mismatch.Category)
}

func TestForecast_WindowErrors(t *testing.T) {
	f := newForecaster()
	model := thresholdModel(150, 30)
	ctx := context.Background()

	_, err := f.Forecast(ctx, model, table([]int{1, 2, 3}, 2), Request{Horizon: 0})
	assert.ErrorIs(t, err, ErrInvalidHorizon)

	_, err = f.Forecast(ctx, model, table([]int{1, 2, 3}, 2), Request{Horizon: 3})
	assert.ErrorIs(t, err, ErrHorizonTooLong)

	_, err = f.Forecast(ctx, model, table([]int{1, 2, 3}, 0), Request{Horizon: 1})
	assert.ErrorIs(t, err, ErrNoUnknownDays)

	_, err = f.Forecast(ctx, model, table([]int{1, 2, 3}, 2), Request{Horizon: 1, Start: day0.AddDate(1, 0, 0)})
	assert.ErrorIs(t, err, ErrStartNotFound)

	_, err = f.Forecast(ctx, model, table([]int{1, 2}, 2), Request{Horizon: 1})
	var gap *features.DataGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, 2, gap.Available)

	gapped := table([]int{1, 2, 3}, 3)
	gapped = append(gapped[:4], gapped[5:]...)
	_, err = f.Forecast(ctx, model, gapped, Request{Horizon: 2})
	assert.ErrorIs(t, err, ErrHorizonTooLong)
}

func TestBacktest(t *testing.T) {
	tbl := table([]int{60, 60, 60, 151, 100, 30}, 0)
	res, err := newForecaster().Backtest(context.Background(), thresholdModel(150.5, 30.4), tbl,
		Request{Horizon: 3, Start: day0.AddDate(0, 0, 3)})
	require.NoError(t, err)

	require.Len(t, res.Steps, 3)
	assert.Equal(t, 0, res.Steps[0].AbsError)
	assert.Equal(t, 51, res.Steps[1].AbsError)
	assert.Equal(t, 0, res.Steps[2].AbsError)
	assert.InDelta(t, 17.0, res.MAE, 1e-9)
}

func TestBacktest_NeedsObservedWindow(t *testing.T) {
	f := newForecaster()
	model := thresholdModel(150, 30)

	_, err := f.Backtest(context.Background(), model, table([]int{1, 2, 3}, 2), Request{Horizon: 2})
	assert.ErrorIs(t, err, ErrStartNotFound)

	_, err = f.Backtest(context.Background(), model, table([]int{1, 2, 3}, 2), Request{Horizon: 2, Start: day0.AddDate(0, 0, 3)})
	assert.ErrorIs(t, err, ErrUnknownTruth)
}

func TestNextUnknownDay(t *testing.T) {
	rows := table([]int{100, 105, 98}, 2)
	rows[0], rows[4] = rows[4], rows[0]

	next, err := NextUnknownDay(rows)
	require.NoError(t, err)
	assert.Equal(t, day0.AddDate(0, 0, 3), next)

	_, err = NextUnknownDay(table([]int{1, 2}, 0))
	assert.ErrorIs(t, err, ErrNoUnknownDays)
}
