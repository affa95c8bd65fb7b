// Package testmocks holds testify mocks of the services the HTTP handlers use.
package testmocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/irfndi/transit-flow/internal/analytics"
	"github.com/irfndi/transit-flow/internal/forecast"
	"github.com/irfndi/transit-flow/internal/models"
	"github.com/irfndi/transit-flow/internal/pipeline"
	"github.com/irfndi/transit-flow/internal/training"
)

// MockForecastService implements handlers.ForecastService for testing
type MockForecastService struct {
	mock.Mock
}

func (m *MockForecastService) ForecastDayFlow(ctx context.Context, name string, req forecast.Request) (*models.ForecastResult, error) {
	args := m.Called(ctx, name, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ForecastResult), args.Error(1)
}

func (m *MockForecastService) ForecastStation(ctx context.Context, station string, req forecast.Request) (*models.ForecastResult, error) {
	args := m.Called(ctx, station, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ForecastResult), args.Error(1)
}

// MockModelService implements handlers.ModelService for testing
type MockModelService struct {
	mock.Mock
}

func (m *MockModelService) Model(ctx context.Context, name string) (*training.TrainedModel, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*training.TrainedModel), args.Error(1)
}

func (m *MockModelService) Train(ctx context.Context, name string, opts pipeline.TrainOptions) (*pipeline.TrainOutcome, error) {
	args := m.Called(ctx, name, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.TrainOutcome), args.Error(1)
}

func (m *MockModelService) TrainStation(ctx context.Context, station string, opts pipeline.TrainOptions) (*pipeline.TrainOutcome, error) {
	args := m.Called(ctx, station, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.TrainOutcome), args.Error(1)
}

func (m *MockModelService) Invalidate(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// MockAnalyticsService implements handlers.AnalyticsService for testing
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) Monthly(ctx context.Context, from, to time.Time) ([]analytics.MonthTotal, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.MonthTotal), args.Error(1)
}

func (m *MockAnalyticsService) Weekday(ctx context.Context, from, to time.Time) ([]analytics.WeekdayMean, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.WeekdayMean), args.Error(1)
}

// MockHealthChecker implements handlers.HealthChecker for testing
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
