// Package testutil builds fixtures shared by package tests: CSV history
// directories and throwaway Redis servers.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/transit-flow/internal/config"
	"github.com/irfndi/transit-flow/internal/models"
)

// History describes a synthetic CSV history. Days [0, Known) have tap-ins;
// days [Known, Known+Future) only have calendar, weather and feature rows.
type History struct {
	Start    time.Time
	Known    int
	Future   int
	Stations []string
	// Taps returns the tap-in count of day i; defaults to a weekly pattern
	Taps func(i int, day time.Time) int
	// Weather returns the category of day i; defaults to Rain every third day
	Weather func(i int) string
	Holiday func(i int) bool
}

// DefaultStart is the first day of a History without Start
var DefaultStart = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

func (h History) withDefaults() History {
	if h.Start.IsZero() {
		h.Start = DefaultStart
	}
	if len(h.Stations) == 0 {
		h.Stations = []string{"Central", "Harbor"}
	}
	if h.Taps == nil {
		h.Taps = func(i int, day time.Time) int {
			n := 30 + (i%5)*2
			if models.ISOWeekday(day) >= 6 {
				n -= 12
			}
			return n
		}
	}
	if h.Weather == nil {
		h.Weather = func(i int) string {
			if i%3 == 0 {
				return "Rain"
			}
			return "Sunny"
		}
	}
	if h.Holiday == nil {
		h.Holiday = func(i int) bool { return i == 0 }
	}
	return h
}

// Day returns the calendar day of index i
func (h History) Day(i int) time.Time {
	return h.withDefaults().Start.AddDate(0, 0, i)
}

// WriteHistory writes flow.csv, holidays.csv, weather.csv and features.csv
// into a temporary directory and returns it.
func WriteHistory(t testing.TB, h History) string {
	t.Helper()
	h = h.withDefaults()

	var flow, holidays, weather, feats strings.Builder
	flow.WriteString("day,station\n")
	holidays.WriteString("day,is_holiday\n")
	weather.WriteString("day,weather,high_temp,low_temp\n")
	feats.WriteString("day,weekday,month,is_holiday,weather,mean_temp,y\n")

	for i := 0; i < h.Known+h.Future; i++ {
		day := h.Start.AddDate(0, 0, i)
		stamp := day.Format(config.DateLayout)
		holiday := boolInt(h.Holiday(i))
		category := h.Weather(i)

		y := ""
		if i < h.Known {
			taps := h.Taps(i, day)
			y = strconv.Itoa(taps)
			for n := 0; n < taps; n++ {
				fmt.Fprintf(&flow, "%s,%s\n", stamp, h.Stations[n%len(h.Stations)])
			}
		}
		fmt.Fprintf(&holidays, "%s,%d\n", stamp, holiday)
		fmt.Fprintf(&weather, "%s,%s,18,8\n", stamp, category)
		fmt.Fprintf(&feats, "%s,%d,%d,%d,%s,13,%s\n", stamp, models.ISOWeekday(day), int(day.Month()), holiday, category, y)
	}

	dir := t.TempDir()
	for name, body := range map[string]string{
		"flow.csv":     flow.String(),
		"holidays.csv": holidays.String(),
		"weather.csv":  weather.String(),
		"features.csv": feats.String(),
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NewRedis starts a miniredis server for the test and returns the matching
// connection settings.
func NewRedis(t testing.TB) (*miniredis.Miniredis, config.RedisConfig) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return mr, config.RedisConfig{Host: mr.Host(), Port: port}
}
