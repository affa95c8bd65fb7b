// Package analytics summarises observed and forecast ridership for dashboards.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/models"
)

// MonthLayout keys every monthly aggregate
const MonthLayout = "2006-01"

// MeanPlaces is the number of decimals kept in averaged values
const MeanPlaces = 1

// MonthTotal is the ridership of one calendar month
type MonthTotal struct {
	Month string              `json:"month"`
	Total int                 `json:"total"`
	Days  int                 `json:"days"`
	Mean  decimal.Decimal     `json:"mean"`
	Peak  models.DailyCount   `json:"peak"`
	Daily []models.DailyCount `json:"daily"`
}

// WeekdayMean is the average ridership per ISO weekday within a month.
// Weekdays without observations are absent from Means.
type WeekdayMean struct {
	Month string                  `json:"month"`
	Means map[int]decimal.Decimal `json:"means"`
	Days  map[int]int             `json:"days"`
}

// MonthlyTotals groups daily counts by calendar month, ordered by month
func MonthlyTotals(counts []models.DailyCount) []MonthTotal {
	byMonth := make(map[string]*MonthTotal)
	for _, c := range sortedCounts(counts) {
		key := c.Day.Format(MonthLayout)
		m, ok := byMonth[key]
		if !ok {
			m = &MonthTotal{Month: key, Peak: c}
			byMonth[key] = m
		}
		m.Total += c.Count
		m.Days++
		m.Daily = append(m.Daily, c)
		if c.Count > m.Peak.Count {
			m.Peak = c
		}
	}

	out := make([]MonthTotal, 0, len(byMonth))
	for _, m := range byMonth {
		m.Mean = decimal.NewFromInt(int64(m.Total)).
			Div(decimal.NewFromInt(int64(m.Days))).
			Round(MeanPlaces)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// WeekdayMeans averages daily counts per month and weekday
func WeekdayMeans(counts []models.DailyCount) []WeekdayMean {
	type acc struct {
		sums map[int]int64
		days map[int]int
	}
	byMonth := make(map[string]*acc)
	for _, c := range counts {
		key := models.TruncateDay(c.Day).Format(MonthLayout)
		a, ok := byMonth[key]
		if !ok {
			a = &acc{sums: map[int]int64{}, days: map[int]int{}}
			byMonth[key] = a
		}
		wd := models.ISOWeekday(c.Day)
		a.sums[wd] += int64(c.Count)
		a.days[wd]++
	}

	out := make([]WeekdayMean, 0, len(byMonth))
	for month, a := range byMonth {
		wm := WeekdayMean{Month: month, Means: make(map[int]decimal.Decimal, len(a.days)), Days: a.days}
		for wd, n := range a.days {
			wm.Means[wd] = decimal.NewFromInt(a.sums[wd]).Div(decimal.NewFromInt(int64(n))).Round(MeanPlaces)
		}
		out = append(out, wm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// ForecastCounts views forecast points as daily counts so they can be
// rolled up like observed history.
func ForecastCounts(result *models.ForecastResult) []models.DailyCount {
	if result == nil {
		return nil
	}
	counts := make([]models.DailyCount, len(result.Points))
	for i, p := range result.Points {
		counts[i] = models.DailyCount{Day: p.Day, Count: p.PredictedY}
	}
	return counts
}

func sortedCounts(counts []models.DailyCount) []models.DailyCount {
	out := make([]models.DailyCount, len(counts))
	for i, c := range counts {
		out[i] = models.DailyCount{Day: models.TruncateDay(c.Day), Count: c.Count}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

// CountSource is the part of the history source analytics reads
type CountSource interface {
	DailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCount, error)
}

// Service serves dashboard aggregates over the ridership history
type Service struct {
	source CountSource
	logger *logrus.Logger
}

func NewService(source CountSource, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{source: source, logger: logger}
}

func (s *Service) Monthly(ctx context.Context, from, to time.Time) ([]MonthTotal, error) {
	counts, err := s.counts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return MonthlyTotals(counts), nil
}

func (s *Service) Weekday(ctx context.Context, from, to time.Time) ([]WeekdayMean, error) {
	counts, err := s.counts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return WeekdayMeans(counts), nil
}

func (s *Service) counts(ctx context.Context, from, to time.Time) ([]models.DailyCount, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s is before %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	counts, err := s.source.DailyCounts(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily counts: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"component": "analytics",
		"days":      len(counts),
	}).Debug("Loaded daily counts")
	return counts, nil
}
