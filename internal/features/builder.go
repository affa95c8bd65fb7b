// Package features turns raw ridership, holiday and weather rows into the
// chronologically ordered day records the forecasting model is trained on.
package features

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/models"
)

// Window is the number of preceding days averaged into the moving-average feature.
const Window = 3

var ErrNegativeCount = errors.New("ridership count must not be negative")

// DataGapError reports a day that lacks Window consecutive predecessors.
type DataGapError struct {
	Day       time.Time
	Available int
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap at %s: %d of %d preceding days available",
		e.Day.Format("2006-01-02"), e.Available, Window)
}

// Result is the usable record sequence plus the days dropped for missing history
type Result struct {
	Records []models.DailyRecord
	Gaps    []*DataGapError
}

// Builder assembles DailyRecord sequences. It performs no I/O.
type Builder struct {
	logger *logrus.Logger
}

// NewBuilder creates a feature builder
func NewBuilder(logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Builder{logger: logger}
}

// joinedDay is a day that survived the inner join of all inputs
type joinedDay struct {
	day       time.Time
	weekday   int
	month     int
	holiday   bool
	weather   string
	meanTemp  float64
	ridership int
}

// AggregateEvents counts events per calendar day, ordered by day
func AggregateEvents(events []models.RidershipEvent) []models.DailyCount {
	totals := make(map[time.Time]int)
	for _, ev := range events {
		totals[models.TruncateDay(ev.Day)]++
	}

	counts := make([]models.DailyCount, 0, len(totals))
	for day, n := range totals {
		counts = append(counts, models.DailyCount{Day: day, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Day.Before(counts[j].Day) })
	return counts
}

// Build inner-joins daily counts with holiday and weather rows and derives
// the mean temperature and moving-average features. Days missing a holiday
// or weather row are dropped before the moving average is computed.
func (b *Builder) Build(counts []models.DailyCount, holidays []models.HolidayFlag, weather []models.WeatherObservation) (*Result, error) {
	holidayByDay := make(map[time.Time]bool, len(holidays))
	for _, h := range holidays {
		holidayByDay[models.TruncateDay(h.Day)] = h.IsHoliday
	}
	weatherByDay := make(map[time.Time]models.WeatherObservation, len(weather))
	for _, w := range weather {
		weatherByDay[models.TruncateDay(w.Day)] = w
	}

	merged := make(map[time.Time]int, len(counts))
	for _, c := range counts {
		if c.Count < 0 {
			return nil, fmt.Errorf("%w: %d on %s", ErrNegativeCount, c.Count, c.Day.Format("2006-01-02"))
		}
		merged[models.TruncateDay(c.Day)] += c.Count
	}

	joined := make([]joinedDay, 0, len(merged))
	for day, n := range merged {
		holiday, ok := holidayByDay[day]
		if !ok {
			continue
		}
		w, ok := weatherByDay[day]
		if !ok {
			continue
		}
		joined = append(joined, joinedDay{
			day:       day,
			weekday:   models.ISOWeekday(day),
			month:     int(day.Month()),
			holiday:   holiday,
			weather:   models.NormalizeWeather(w.Category),
			meanTemp:  (w.HighTemp + w.LowTemp) / 2,
			ridership: n,
		})
	}

	b.logger.WithFields(logrus.Fields{
		"component": "feature_builder",
		"days":      len(merged),
		"joined":    len(joined),
	}).Debug("Joined ridership with calendar and weather")

	return b.assemble(joined)
}

// FromFeatureTable derives records from the known rows of a precomputed
// feature table. Rows with an unknown Y are ignored.
func (b *Builder) FromFeatureTable(table []models.FeatureDay) (*Result, error) {
	joined := make([]joinedDay, 0, len(table))
	for _, row := range table {
		if !row.Known() {
			continue
		}
		if *row.Y < 0 {
			return nil, fmt.Errorf("%w: %d on %s", ErrNegativeCount, *row.Y, row.Day.Format("2006-01-02"))
		}
		joined = append(joined, joinedDay{
			day:       models.TruncateDay(row.Day),
			weekday:   row.Weekday,
			month:     row.Month,
			holiday:   row.IsHoliday,
			weather:   models.NormalizeWeather(row.WeatherCategory),
			meanTemp:  row.MeanTemp,
			ridership: *row.Y,
		})
	}
	return b.assemble(joined)
}

// OverlayCounts returns a copy of table whose Y values are replaced by the
// given series. Rows without a matching count become unknown.
func OverlayCounts(table []models.FeatureDay, counts []models.DailyCount) []models.FeatureDay {
	byDay := make(map[time.Time]int, len(counts))
	for _, c := range counts {
		byDay[models.TruncateDay(c.Day)] += c.Count
	}

	out := make([]models.FeatureDay, len(table))
	for i, row := range table {
		out[i] = row
		out[i].Y = nil
		if n, ok := byDay[models.TruncateDay(row.Day)]; ok {
			v := n
			out[i].Y = &v
		}
	}
	return out
}

func (b *Builder) assemble(joined []joinedDay) (*Result, error) {
	sort.Slice(joined, func(i, j int) bool { return joined[i].day.Before(joined[j].day) })

	result := &Result{Records: make([]models.DailyRecord, 0, len(joined))}
	longest := 0
	for _, run := range consecutiveRuns(joined) {
		if len(run) > longest {
			longest = len(run)
		}

		values := make([]float64, len(run))
		for i, d := range run {
			values[i] = float64(d.ridership)
		}
		averages := MovingAverages(values)

		for i, d := range run {
			if i < Window {
				result.Gaps = append(result.Gaps, &DataGapError{Day: d.day, Available: i})
				continue
			}
			result.Records = append(result.Records, models.DailyRecord{
				Day:             d.day,
				Weekday:         d.weekday,
				Month:           d.month,
				IsHoliday:       d.holiday,
				WeatherCategory: d.weather,
				MeanTemp:        d.meanTemp,
				Y:               d.ridership,
				MovingAverage:   averages[i],
			})
		}
	}

	if len(result.Gaps) > 0 {
		b.logger.WithFields(logrus.Fields{
			"component": "feature_builder",
			"dropped":   len(result.Gaps),
			"kept":      len(result.Records),
		}).Info("Dropped days without enough preceding history")
	}

	if len(result.Records) == 0 {
		gap := &DataGapError{Available: max(longest-1, 0)}
		if len(joined) > 0 {
			gap.Day = joined[len(joined)-1].day
		}
		return nil, gap
	}
	return result, nil
}

// consecutiveRuns splits day-ordered rows wherever a calendar day is missing
func consecutiveRuns(days []joinedDay) [][]joinedDay {
	var runs [][]joinedDay
	start := 0
	for i := 1; i <= len(days); i++ {
		if i == len(days) || !days[i].day.Equal(days[i-1].day.AddDate(0, 0, 1)) {
			runs = append(runs, days[start:i])
			start = i
		}
	}
	return runs
}

// MovingAverages returns, for every index t >= Window, the mean of
// values[t-Window..t-1]. Entries before Window are zero.
func MovingAverages(values []float64) []float64 {
	averages := make([]float64, len(values))
	if len(values) <= Window {
		return averages
	}

	sma := trend.NewSmaWithPeriod[float64](Window)
	windowed := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))

	// windowed ends with the window closing at the last value; align from there
	offset := len(windowed) - len(values)
	for t := Window; t < len(values); t++ {
		k := t - 1 + offset
		if k >= 0 && k < len(windowed) {
			averages[t] = windowed[k]
		} else {
			averages[t] = TrailingMean(values, t)
		}
	}
	return averages
}

// TrailingMean averages the Window values strictly before index t
func TrailingMean(values []float64, t int) float64 {
	sum := 0.0
	for i := t - Window; i < t; i++ {
		sum += values[i]
	}
	return sum / Window
}
