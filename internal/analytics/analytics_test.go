package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/transit-flow/internal/models"
)

func d(month time.Month, day int) time.Time {
	return time.Date(2020, month, day, 0, 0, 0, 0, time.UTC)
}

// 2020-01-06 is a Monday
var sample = []models.DailyCount{
	{Day: d(2, 3), Count: 500},
	{Day: d(1, 6), Count: 1000},
	{Day: d(1, 7), Count: 1200},
	{Day: d(1, 13), Count: 1101},
	{Day: d(2, 4), Count: 700},
}

func TestMonthlyTotals(t *testing.T) {
	months := MonthlyTotals(sample)
	require.Len(t, months, 2)

	jan := months[0]
	assert.Equal(t, "2020-01", jan.Month)
	assert.Equal(t, 3301, jan.Total)
	assert.Equal(t, 3, jan.Days)
	assert.Equal(t, "1100.3", jan.Mean.String())
	assert.Equal(t, d(1, 7), jan.Peak.Day)
	assert.Equal(t, d(1, 6), jan.Daily[0].Day)

	feb := months[1]
	assert.Equal(t, 1200, feb.Total)
	assert.Equal(t, "600", feb.Mean.String())
}

func TestWeekdayMeans(t *testing.T) {
	weeks := WeekdayMeans(sample)
	require.Len(t, weeks, 2)

	jan := weeks[0]
	assert.Equal(t, "2020-01", jan.Month)
	assert.Equal(t, "1050.5", jan.Means[1].String())
	assert.Equal(t, 2, jan.Days[1])
	assert.Equal(t, "1200", jan.Means[2].String())
	_, ok := jan.Means[7]
	assert.False(t, ok)
}

func TestForecastCounts(t *testing.T) {
	assert.Nil(t, ForecastCounts(nil))

	res := &models.ForecastResult{Points: []models.ForecastPoint{
		{Day: d(3, 1), PredictedY: 900},
		{Day: d(3, 2), PredictedY: 950},
	}}
	months := MonthlyTotals(ForecastCounts(res))
	require.Len(t, months, 1)
	assert.Equal(t, 1850, months[0].Total)
}

type stubSource struct {
	counts []models.DailyCount
	err    error
}

func (s stubSource) DailyCounts(context.Context, time.Time, time.Time) ([]models.DailyCount, error) {
	return s.counts, s.err
}

func TestService(t *testing.T) {
	svc := NewService(stubSource{counts: sample}, nil)
	ctx := context.Background()

	months, err := svc.Monthly(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, months, 2)

	weeks, err := svc.Weekday(ctx, d(1, 1), d(2, 28))
	require.NoError(t, err)
	assert.Len(t, weeks, 2)

	_, err = svc.Monthly(ctx, d(2, 1), d(1, 1))
	assert.ErrorContains(t, err, "invalid range")

	failing := NewService(stubSource{err: errors.New("db down")}, nil)
	_, err = failing.Weekday(ctx, time.Time{}, time.Time{})
	assert.ErrorContains(t, err, "db down")
}
