package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/transit-flow/internal/database"
	"github.com/irfndi/transit-flow/internal/dataset"
	"github.com/irfndi/transit-flow/internal/features"
	"github.com/irfndi/transit-flow/internal/forecast"
	"github.com/irfndi/transit-flow/internal/models"
	"github.com/irfndi/transit-flow/internal/store"
	"github.com/irfndi/transit-flow/internal/training"
	"github.com/irfndi/transit-flow/internal/tuning"
)

var firstDay = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu       sync.Mutex
	known    int
	future   int
	calls    map[string]int
	override map[int]string
	counts   []int
}

func newFakeSource(known, future int) *fakeSource {
	return &fakeSource{known: known, future: future, calls: map[string]int{}, override: map[int]string{}}
}

func (f *fakeSource) count(i int) int {
	if f.counts != nil {
		return f.counts[i]
	}
	d := firstDay.AddDate(0, 0, i)
	n := 1000 + 15*(i%5)
	if models.ISOWeekday(d) >= 6 {
		n -= 400
	}
	return n
}

func (f *fakeSource) weather(i int) string {
	if w, ok := f.override[i]; ok {
		return w
	}
	if i%3 == 0 {
		return "Rain"
	}
	return "Sunny"
}

func (f *fakeSource) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeSource) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) DailyCounts(_ context.Context, _, _ time.Time) ([]models.DailyCount, error) {
	f.hit("DailyCounts")
	out := make([]models.DailyCount, f.known)
	for i := range out {
		out[i] = models.DailyCount{Day: firstDay.AddDate(0, 0, i), Count: f.count(i)}
	}
	return out, nil
}

func (f *fakeSource) Holidays(_ context.Context, _, _ time.Time) ([]models.HolidayFlag, error) {
	f.hit("Holidays")
	out := make([]models.HolidayFlag, f.known+f.future)
	for i := range out {
		out[i] = models.HolidayFlag{Day: firstDay.AddDate(0, 0, i), IsHoliday: i == 0}
	}
	return out, nil
}

func (f *fakeSource) Weather(_ context.Context, _, _ time.Time) ([]models.WeatherObservation, error) {
	f.hit("Weather")
	out := make([]models.WeatherObservation, f.known+f.future)
	for i := range out {
		out[i] = models.WeatherObservation{Day: firstDay.AddDate(0, 0, i), Category: f.weather(i), HighTemp: 10, LowTemp: 2}
	}
	return out, nil
}

func (f *fakeSource) FeatureTable(_ context.Context, _, _ time.Time) ([]models.FeatureDay, error) {
	f.hit("FeatureTable")
	out := make([]models.FeatureDay, f.known+f.future)
	for i := range out {
		d := firstDay.AddDate(0, 0, i)
		out[i] = models.FeatureDay{
			Day:             d,
			Weekday:         models.ISOWeekday(d),
			Month:           int(d.Month()),
			IsHoliday:       i == 0,
			WeatherCategory: f.weather(i),
			MeanTemp:        6,
		}
		if i < f.known {
			y := f.count(i)
			out[i].Y = &y
		}
	}
	return out, nil
}

func (f *fakeSource) StationCounts(_ context.Context, station string, _, _ time.Time) ([]models.DailyCount, error) {
	f.hit("StationCounts:" + station)
	out := make([]models.DailyCount, f.known)
	for i := range out {
		out[i] = models.DailyCount{Day: firstDay.AddDate(0, 0, i), Count: f.count(i) / 10}
	}
	return out, nil
}

type downSource struct {
	*fakeSource
}

func (d downSource) DailyCounts(_ context.Context, _, _ time.Time) ([]models.DailyCount, error) {
	return nil, fmt.Errorf("%w: breaker open", database.ErrSourceUnavailable)
}

type failingSaveStore struct {
	store.Store
}

func (f failingSaveStore) Save(_ context.Context, _ string, _ *training.TrainedModel) error {
	return errors.New("disk full")
}

type fakeNotifier struct {
	outcomes []*TrainOutcome
}

func (n *fakeNotifier) NotifyTrained(_ context.Context, o *TrainOutcome) error {
	n.outcomes = append(n.outcomes, o)
	return nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*models.ForecastResult
	hits    int
}

func (c *memoryCache) key(model string, start time.Time, horizon int) string {
	return model + start.Format("2006-01-02") + string(rune('0'+horizon))
}

func (c *memoryCache) Get(_ context.Context, model string, start time.Time, horizon int) (*models.ForecastResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[c.key(model, start, horizon)]
	if ok {
		c.hits++
	}
	return r, ok
}

func (c *memoryCache) Set(_ context.Context, model string, start time.Time, horizon int, r *models.ForecastResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(model, start, horizon)] = r
}

func (c *memoryCache) InvalidateModel(_ context.Context, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*models.ForecastResult{}
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestService(t *testing.T, src HistorySource, deps Dependencies) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	deps.Source = src
	deps.Store = st
	deps.Logger = quietLogger()
	return NewService(deps, Config{CV: training.CVConfig{Folds: 3, MaxWorkers: 2}}), st
}

func TestForecastDayFlow_TrainsThenForecasts(t *testing.T) {
	src := newFakeSource(70, 10)
	notifier := &fakeNotifier{}
	svc, st := newTestService(t, src, Dependencies{Notifier: notifier})
	ctx := context.Background()

	res, err := svc.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 7})
	require.NoError(t, err)
	require.Equal(t, 7, res.Len())
	assert.Equal(t, firstDay.AddDate(0, 0, 70), res.Points[0].Day)
	for i, p := range res.Points {
		assert.GreaterOrEqual(t, p.PredictedY, 0)
		assert.Equal(t, firstDay.AddDate(0, 0, 70+i), p.Day)
	}
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, src.Calls("DailyCounts"))
	require.Len(t, notifier.outcomes, 1)
	assert.Equal(t, "test", notifier.outcomes[0].Report.Partition)

	ok, err := st.Exists(ctx, "day_flow")
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := svc.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 7})
	require.NoError(t, err)
	assert.Equal(t, res.Values(), again.Values())
	assert.Equal(t, 1, src.Calls("DailyCounts"))
	assert.Len(t, notifier.outcomes, 1)
}

func TestForecastDayFlow_SkipsTrainingWhenArtifactExists(t *testing.T) {
	trainedBy := newFakeSource(70, 10)
	svc, st := newTestService(t, trainedBy, Dependencies{})
	_, err := svc.Train(context.Background(), "day_flow", TrainOptions{})
	require.NoError(t, err)

	src := newFakeSource(70, 10)
	fresh := NewService(Dependencies{Source: src, Store: st, Logger: quietLogger()}, Config{})
	res, err := fresh.ForecastDayFlow(context.Background(), "day_flow", forecast.Request{Horizon: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Len())
	assert.Equal(t, 0, src.Calls("DailyCounts"))
	assert.Equal(t, 0, src.Calls("Weather"))
	assert.Equal(t, 1, src.Calls("FeatureTable"))
}

func TestForecastDayFlow_UnseenWeatherCategory(t *testing.T) {
	src := newFakeSource(70, 10)
	src.override[72] = "sandstorm"
	svc, _ := newTestService(t, src, Dependencies{})

	res, err := svc.ForecastDayFlow(context.Background(), "day_flow", forecast.Request{Horizon: 5})
	assert.Nil(t, res)
	var mismatch *dataset.EncodingMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "sandstorm", mismatch.Category)
}

func TestForecastDayFlow_ModelNotFoundWhenTrainingImpossible(t *testing.T) {
	svc, st := newTestService(t, newFakeSource(3, 5), Dependencies{})

	_, err := svc.ForecastDayFlow(context.Background(), "day_flow", forecast.Request{Horizon: 2})
	var notFound *ModelNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "day_flow", notFound.Name)
	assert.ErrorIs(t, err, store.ErrModelNotFound)
	var gap *features.DataGapError
	assert.ErrorAs(t, err, &gap)

	ok, err := st.Exists(context.Background(), "day_flow")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestForecastDayFlow_SevenKnownDays(t *testing.T) {
	src := newFakeSource(7, 3)
	src.counts = []int{100, 105, 98, 110, 102, 95, 99}
	svc, st := newTestService(t, src, Dependencies{})
	ctx := context.Background()

	res, err := svc.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 3})
	require.NoError(t, err)
	require.Equal(t, 3, res.Len())
	for i, p := range res.Points {
		assert.Equal(t, firstDay.AddDate(0, 0, 7+i), p.Day)
		assert.GreaterOrEqual(t, p.PredictedY, 0)
	}

	model, err := st.Load(ctx, "day_flow")
	require.NoError(t, err)
	assert.Equal(t, 3, model.TrainingRows)

	again, err := svc.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 3})
	require.NoError(t, err)
	assert.Equal(t, res.Values(), again.Values())
	assert.Equal(t, 1, src.Calls("DailyCounts"))
}

func TestForecastDayFlow_SourceDown(t *testing.T) {
	svc, st := newTestService(t, downSource{newFakeSource(70, 10)}, Dependencies{})

	_, err := svc.ForecastDayFlow(context.Background(), "day_flow", forecast.Request{Horizon: 2})
	require.ErrorIs(t, err, database.ErrSourceUnavailable)
	var notFound *ModelNotFoundError
	assert.False(t, errors.As(err, &notFound))
	assert.NotErrorIs(t, err, store.ErrModelNotFound)

	ok, err := st.Exists(context.Background(), "day_flow")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestForecastDayFlow_SaveFailureIsNotModelNotFound(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc := NewService(Dependencies{
		Source: newFakeSource(40, 5),
		Store:  failingSaveStore{fs},
		Logger: quietLogger(),
	}, Config{})

	_, err = svc.ForecastDayFlow(context.Background(), "day_flow", forecast.Request{Horizon: 2})
	require.ErrorContains(t, err, "disk full")
	var notFound *ModelNotFoundError
	assert.False(t, errors.As(err, &notFound))
}

func TestForecastDayFlow_CacheKeyFollowsNewRidership(t *testing.T) {
	src := newFakeSource(40, 5)
	cache := &memoryCache{entries: map[string]*models.ForecastResult{}}
	svc, _ := newTestService(t, src, Dependencies{Cache: cache})
	ctx := context.Background()

	first, err := svc.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 2})
	require.NoError(t, err)
	assert.Equal(t, firstDay.AddDate(0, 0, 40), first.Points[0].Day)

	src.known = 41
	src.future = 4
	next, err := svc.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)
	assert.Equal(t, firstDay.AddDate(0, 0, 41), next.Points[0].Day)
}

func TestTrain_WithTuning(t *testing.T) {
	src := newFakeSource(60, 0)
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc := NewService(Dependencies{Source: src, Store: st, Logger: quietLogger()}, Config{
		CV: training.CVConfig{Folds: 3, MaxWorkers: 2},
		Grid: tuning.Grid{
			{Name: "n_estimators", Values: []float64{10, 20}},
			{Name: "max_depth", Values: []float64{2, 4}},
		},
	})

	tune := true
	outcome, err := svc.Train(context.Background(), "tuned", TrainOptions{Tune: &tune, TrainRatio: 0.8})
	require.NoError(t, err)
	require.NotNil(t, outcome.Tuning)
	assert.Len(t, outcome.Tuning.Steps, 2)
	assert.Equal(t, outcome.Tuning.Params, outcome.Model.Params)
	assert.Equal(t, 57, outcome.Records)
	assert.Equal(t, 3, outcome.Gaps)
	assert.Equal(t, 45, outcome.Model.TrainingRows)
}

func TestInvalidate(t *testing.T) {
	svc, st := newTestService(t, newFakeSource(40, 0), Dependencies{})
	ctx := context.Background()
	_, err := svc.Train(ctx, "day_flow", TrainOptions{})
	require.NoError(t, err)

	model, err := svc.Model(ctx, "day_flow")
	require.NoError(t, err)
	assert.Equal(t, "day_flow", model.Name)

	require.NoError(t, svc.Invalidate(ctx, "day_flow"))
	ok, err := st.Exists(ctx, "day_flow")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, svc.Invalidate(ctx, "day_flow"), store.ErrModelNotFound)
}

func TestForecastStation(t *testing.T) {
	src := newFakeSource(50, 5)
	svc, st := newTestService(t, src, Dependencies{})

	res, err := svc.ForecastStation(context.Background(), "Central", forecast.Request{Horizon: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Len())
	assert.Equal(t, "station_central", res.Model)
	assert.Equal(t, firstDay.AddDate(0, 0, 50), res.Points[0].Day)
	assert.Equal(t, 2, src.Calls("StationCounts:Central"))
	assert.Equal(t, 0, src.Calls("DailyCounts"))

	ok, err := st.Exists(context.Background(), "station_central")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestForecastDayFlow_UsesCache(t *testing.T) {
	src := newFakeSource(40, 5)
	cache := &memoryCache{entries: map[string]*models.ForecastResult{}}
	svc, _ := newTestService(t, src, Dependencies{Cache: cache})
	ctx := context.Background()

	first, err := svc.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 3})
	require.NoError(t, err)
	second, err := svc.ForecastDayFlow(ctx, "day_flow", forecast.Request{Horizon: 3})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 2, src.Calls("FeatureTable"))

	_, err = svc.Train(ctx, "day_flow", TrainOptions{})
	require.NoError(t, err)
	assert.Empty(t, cache.entries)
}

func TestStationModelName(t *testing.T) {
	assert.Equal(t, "station_central_park", StationModelName("Central Park!"))
	assert.Equal(t, "station_line-2_east", StationModelName("Line-2/East"))
	assert.Equal(t, "station_harbour", StationModelName("  Harbour  "))
	assert.NoError(t, store.ValidateName(StationModelName("  Harbour  ")))

	names := map[string]string{}
	for _, station := range []string{"人民广场", "徐家汇", "", "Line 2 人民广场", "Line 2 徐家汇"} {
		name := StationModelName(station)
		assert.NoError(t, store.ValidateName(name), station)
		assert.NotEqual(t, "station_", name)
		assert.NotContains(t, names, name, "%q collides with %q", station, names[name])
		names[name] = station
	}
	assert.Equal(t, StationModelName("人民广场"), StationModelName(" 人民广场 "))
	assert.Regexp(t, `^station_line_2_[0-9a-f]{8}$`, StationModelName("Line 2 人民广场"))
}

func TestModelNotFoundError_Unwrap(t *testing.T) {
	cause := errors.New("no rows")
	err := &ModelNotFoundError{Name: "m", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, store.ErrModelNotFound)
	assert.Contains(t, err.Error(), "no rows")
}
