package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/irfndi/transit-flow/internal/config"
	"github.com/irfndi/transit-flow/internal/models"
)

// ErrSourceUnavailable is returned while the breaker refuses database reads
var ErrSourceUnavailable = errors.New("history source unavailable")

const (
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
)

// GuardedRepository fails fast once the database has failed repeatedly,
// instead of letting every forecast request wait on a dead pool.
type GuardedRepository struct {
	repo    *HistoryRepository
	breaker *gobreaker.CircuitBreaker[any]
}

func NewGuardedRepository(repo *HistoryRepository, cfg *config.DatabaseConfig, logger *logrus.Logger) *GuardedRepository {
	threshold := uint32(defaultBreakerThreshold)
	timeout := defaultBreakerTimeout
	if cfg != nil {
		if cfg.BreakerThreshold > 0 {
			threshold = cfg.BreakerThreshold
		}
		if d, err := time.ParseDuration(cfg.BreakerTimeout); err == nil && d > 0 {
			timeout = d
		}
	}

	settings := gobreaker.Settings{
		Name:        "history_source",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("History source breaker changed state")
			}
		},
	}
	return &GuardedRepository{
		repo:    repo,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State reports the breaker state, mainly for health output
func (g *GuardedRepository) State() gobreaker.State {
	return g.breaker.State()
}

func guarded[T any](b *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	v, err := b.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

func (g *GuardedRepository) DailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCount, error) {
	return guarded(g.breaker, func() ([]models.DailyCount, error) {
		return g.repo.DailyCounts(ctx, from, to)
	})
}

func (g *GuardedRepository) StationCounts(ctx context.Context, station string, from, to time.Time) ([]models.DailyCount, error) {
	return guarded(g.breaker, func() ([]models.DailyCount, error) {
		return g.repo.StationCounts(ctx, station, from, to)
	})
}

func (g *GuardedRepository) Holidays(ctx context.Context, from, to time.Time) ([]models.HolidayFlag, error) {
	return guarded(g.breaker, func() ([]models.HolidayFlag, error) {
		return g.repo.Holidays(ctx, from, to)
	})
}

func (g *GuardedRepository) Weather(ctx context.Context, from, to time.Time) ([]models.WeatherObservation, error) {
	return guarded(g.breaker, func() ([]models.WeatherObservation, error) {
		return g.repo.Weather(ctx, from, to)
	})
}

func (g *GuardedRepository) FeatureTable(ctx context.Context, from, to time.Time) ([]models.FeatureDay, error) {
	return guarded(g.breaker, func() ([]models.FeatureDay, error) {
		return g.repo.FeatureTable(ctx, from, to)
	})
}

// HealthCheck pings through the breaker so an open breaker reports unhealthy
func (g *GuardedRepository) HealthCheck(ctx context.Context) error {
	_, err := guarded(g.breaker, func() (struct{}, error) {
		return struct{}{}, g.repo.Ping(ctx)
	})
	return err
}
