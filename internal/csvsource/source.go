// Package csvsource reads ridership history from a directory of CSV exports.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/irfndi/transit-flow/internal/features"
	"github.com/irfndi/transit-flow/internal/models"
)

// File names inside the source directory
const (
	FlowFile     = "flow.csv"
	HolidayFile  = "holidays.csv"
	WeatherFile  = "weather.csv"
	FeatureFile  = "features.csv"
	EncodingUTF8 = "utf-8"
	EncodingGB   = "gb18030"
)

var dayLayouts = []string{"2006-01-02", "2006/01/02", "2006/1/2", "2006-01-02 15:04:05", "20060102"}

var (
	// ErrMissingColumn is returned when a header lacks a required column
	ErrMissingColumn = errors.New("required column missing")
	ErrNotFinite     = errors.New("value is not a finite number")
)

// Options configures the CSV source
type Options struct {
	Dir      string
	Encoding string
}

// Source implements the pipeline history source over CSV files.
//
// flow.csv has one row per tap-in with at least "day" and "station" columns.
// holidays.csv is "day,is_holiday" with or without a header. weather.csv
// has "day,weather,high_temp,low_temp". features.csv has
// "day,weekday,month,is_holiday,weather,mean_temp,y" where y is empty for
// days not yet observed.
type Source struct {
	opts Options
}

func New(opts Options) *Source {
	if opts.Encoding == "" {
		opts.Encoding = EncodingUTF8
	}
	return &Source{opts: opts}
}

// Events returns every tap-in of flow.csv within the range
func (s *Source) Events(ctx context.Context, from, to time.Time) ([]models.RidershipEvent, error) {
	var events []models.RidershipEvent
	err := s.scan(ctx, FlowFile, true, func(row columns) error {
		day, err := row.day("day")
		if err != nil {
			return err
		}
		if !inRange(day, from, to) {
			return nil
		}
		events = append(events, models.RidershipEvent{Day: day, Station: row.get("station")})
		return nil
	})
	return events, err
}

func (s *Source) DailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCount, error) {
	events, err := s.Events(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return features.AggregateEvents(events), nil
}

func (s *Source) StationCounts(ctx context.Context, station string, from, to time.Time) ([]models.DailyCount, error) {
	events, err := s.Events(ctx, from, to)
	if err != nil {
		return nil, err
	}
	kept := events[:0]
	for _, ev := range events {
		if strings.EqualFold(strings.TrimSpace(ev.Station), strings.TrimSpace(station)) {
			kept = append(kept, ev)
		}
	}
	return features.AggregateEvents(kept), nil
}

func (s *Source) Holidays(ctx context.Context, from, to time.Time) ([]models.HolidayFlag, error) {
	var out []models.HolidayFlag
	err := s.scan(ctx, HolidayFile, false, func(row columns) error {
		day, err := row.dayAt(0)
		if err != nil {
			return err
		}
		if !inRange(day, from, to) {
			return nil
		}
		flag, err := parseBool(row.at(1))
		if err != nil {
			return fmt.Errorf("is_holiday on %s: %w", day.Format("2006-01-02"), err)
		}
		out = append(out, models.HolidayFlag{Day: day, IsHoliday: flag})
		return nil
	})
	return out, err
}

func (s *Source) Weather(ctx context.Context, from, to time.Time) ([]models.WeatherObservation, error) {
	var out []models.WeatherObservation
	err := s.scan(ctx, WeatherFile, true, func(row columns) error {
		day, err := row.day("day")
		if err != nil {
			return err
		}
		if !inRange(day, from, to) {
			return nil
		}
		high, err := row.floatValue("high_temp")
		if err != nil {
			return err
		}
		low, err := row.floatValue("low_temp")
		if err != nil {
			return err
		}
		out = append(out, models.WeatherObservation{Day: day, Category: row.get("weather"), HighTemp: high, LowTemp: low})
		return nil
	})
	return out, err
}

func (s *Source) FeatureTable(ctx context.Context, from, to time.Time) ([]models.FeatureDay, error) {
	var out []models.FeatureDay
	err := s.scan(ctx, FeatureFile, true, func(row columns) error {
		day, err := row.day("day")
		if err != nil {
			return err
		}
		if !inRange(day, from, to) {
			return nil
		}
		f := models.FeatureDay{Day: day, WeatherCategory: row.get("weather")}
		if f.Weekday, err = row.intValue("weekday"); err != nil {
			return err
		}
		if f.Month, err = row.intValue("month"); err != nil {
			return err
		}
		if f.IsHoliday, err = parseBool(row.get("is_holiday")); err != nil {
			return fmt.Errorf("is_holiday on %s: %w", day.Format("2006-01-02"), err)
		}
		if f.MeanTemp, err = row.floatValue("mean_temp"); err != nil {
			return err
		}
		if raw := row.get("y"); raw != "" {
			y, err := parseFinite(raw)
			if err != nil {
				return fmt.Errorf("y on %s: %w", day.Format("2006-01-02"), err)
			}
			v := int(y)
			f.Y = &v
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func (s *Source) open(name string) (io.ReadCloser, io.Reader, error) {
	f, err := os.Open(filepath.Join(s.opts.Dir, name))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	switch strings.ToLower(s.opts.Encoding) {
	case EncodingUTF8, "utf8":
		return f, f, nil
	case EncodingGB, "gbk":
		return f, transform.NewReader(f, simplifiedchinese.GB18030.NewDecoder()), nil
	default:
		_ = f.Close()
		return nil, nil, fmt.Errorf("unsupported csv encoding %q", s.opts.Encoding)
	}
}

// scan feeds every data row of name to fn. With header false the first row
// is still treated as a header when its first cell is not a date.
func (s *Source) scan(ctx context.Context, name string, header bool, fn func(columns) error) error {
	closer, r, err := s.open(name)
	if err != nil {
		return err
	}
	defer closer.Close()

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var index map[string]int
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if line == 1 {
			record[0] = strings.TrimPrefix(record[0], "\ufeff")
			if header || !looksLikeDay(record[0]) {
				index = make(map[string]int, len(record))
				for i, h := range record {
					index[strings.ToLower(strings.TrimSpace(h))] = i
				}
				continue
			}
		}

		if err := fn(columns{record: record, index: index}); err != nil {
			return fmt.Errorf("%s line %d: %w", name, line, err)
		}
	}
}

type columns struct {
	record []string
	index  map[string]int
}

func (c columns) at(i int) string {
	if i < 0 || i >= len(c.record) {
		return ""
	}
	return strings.TrimSpace(c.record[i])
}

func (c columns) get(name string) string {
	i, ok := c.index[name]
	if !ok {
		return ""
	}
	return c.at(i)
}

func (c columns) require(name string) (string, error) {
	if _, ok := c.index[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return c.get(name), nil
}

func (c columns) day(name string) (time.Time, error) {
	raw, err := c.require(name)
	if err != nil {
		return time.Time{}, err
	}
	return parseDay(raw)
}

func (c columns) dayAt(i int) (time.Time, error) {
	return parseDay(c.at(i))
}

func (c columns) floatValue(name string) (float64, error) {
	raw, err := c.require(name)
	if err != nil {
		return 0, err
	}
	v, err := parseFinite(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotFinite, raw)
	}
	return v, nil
}

func (c columns) intValue(name string) (int, error) {
	v, err := c.floatValue(name)
	return int(v), err
}

func parseDay(raw string) (time.Time, error) {
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return models.TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised day %q", raw)
}

func looksLikeDay(raw string) bool {
	_, err := parseDay(strings.TrimSpace(raw))
	return err == nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "1.0", "true", "t", "yes":
		return true, nil
	case "0", "0.0", "false", "f", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag %q", raw)
}

func inRange(day, from, to time.Time) bool {
	if !from.IsZero() && day.Before(models.TruncateDay(from)) {
		return false
	}
	if !to.IsZero() && day.After(models.TruncateDay(to)) {
		return false
	}
	return true
}
