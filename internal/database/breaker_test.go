package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/sirupsen/logrus/hooks/test"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/transit-flow/internal/config"
	"github.com/irfndi/transit-flow/internal/models"
)

const holidayQuery = "SELECT day, is_holiday FROM holidays ORDER BY day"

func TestGuardedRepository_PassesThrough(t *testing.T) {
	repo, mock := newMockRepository(t)
	guarded := NewGuardedRepository(repo, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta(holidayQuery)).
		WillReturnRows(pgxmock.NewRows([]string{"day", "is_holiday"}).AddRow(day(1), true))

	holidays, err := guarded.Holidays(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []models.HolidayFlag{{Day: day(1), IsHoliday: true}}, holidays)
	assert.Equal(t, gobreaker.StateClosed, guarded.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardedRepository_OpensAfterFailures(t *testing.T) {
	repo, mock := newMockRepository(t)
	logger, hook := test.NewNullLogger()
	guarded := NewGuardedRepository(repo, &config.DatabaseConfig{BreakerThreshold: 2, BreakerTimeout: "1m"}, logger)

	down := errors.New("connection refused")
	mock.ExpectQuery(regexp.QuoteMeta(holidayQuery)).WillReturnError(down)
	mock.ExpectQuery(regexp.QuoteMeta(holidayQuery)).WillReturnError(down)

	for i := 0; i < 2; i++ {
		_, err := guarded.Holidays(context.Background(), time.Time{}, time.Time{})
		require.ErrorIs(t, err, down)
		assert.NotErrorIs(t, err, ErrSourceUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, guarded.State())

	// The third read never reaches the pool.
	_, err := guarded.Holidays(context.Background(), time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, guarded.HealthCheck(context.Background()), ErrSourceUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, "open", hook.LastEntry().Data["to"])
}

func TestGuardedRepository_CancelledReadsDoNotTrip(t *testing.T) {
	repo, mock := newMockRepository(t)
	guarded := NewGuardedRepository(repo, &config.DatabaseConfig{BreakerThreshold: 1}, nil)

	mock.ExpectQuery(regexp.QuoteMeta(holidayQuery)).WillReturnError(context.Canceled)

	_, err := guarded.Holidays(context.Background(), time.Time{}, time.Time{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gobreaker.StateClosed, guarded.State())
}
