package models

import "time"

// RidershipEvent represents a single tap-in recorded by the fare system
type RidershipEvent struct {
	Day     time.Time `json:"day" db:"day"`
	Station string    `json:"station" db:"station"`
}

// DailyCount represents the aggregated ridership of one calendar day
type DailyCount struct {
	Day   time.Time `json:"day" db:"day"`
	Count int       `json:"count" db:"count"`
}

// HolidayFlag marks whether a calendar day is a public holiday
type HolidayFlag struct {
	Day       time.Time `json:"day" db:"day"`
	IsHoliday bool      `json:"is_holiday" db:"is_holiday"`
}

// WeatherObservation holds the daily weather summary for the network area
type WeatherObservation struct {
	Day      time.Time `json:"day" db:"day"`
	Category string    `json:"weather" db:"weather"`
	HighTemp float64   `json:"high_temp" db:"high_temp"`
	LowTemp  float64   `json:"low_temp" db:"low_temp"`
}

// DailyRecord is one day of model input. MovingAverage is derived only from
// the three days strictly before Day.
type DailyRecord struct {
	Day             time.Time `json:"day"`
	Weekday         int       `json:"weekday"`
	Month           int       `json:"month"`
	IsHoliday       bool      `json:"is_holiday"`
	WeatherCategory string    `json:"weather"`
	MeanTemp        float64   `json:"mean_temp"`
	Y               int       `json:"y"`
	MovingAverage   float64   `json:"moving_average"`
}

// FeatureDay is a row of the precomputed calendar/weather table that spans
// both history and the future. Future rows carry a nil Y.
type FeatureDay struct {
	Day             time.Time `json:"day" db:"day"`
	Weekday         int       `json:"weekday" db:"weekday"`
	Month           int       `json:"month" db:"month"`
	IsHoliday       bool      `json:"is_holiday" db:"is_holiday"`
	WeatherCategory string    `json:"weather" db:"weather"`
	MeanTemp        float64   `json:"mean_temp" db:"mean_temp"`
	Y               *int      `json:"y,omitempty" db:"y"`
}

// Known reports whether the ridership of the day has been observed
func (f FeatureDay) Known() bool {
	return f.Y != nil
}

// ISOWeekday maps time.Weekday onto 1 (Monday) .. 7 (Sunday)
func ISOWeekday(day time.Time) int {
	wd := int(day.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// TruncateDay drops the clock part of t, keeping its calendar date in UTC
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
