package models

import "time"

// ForecastPoint is one predicted day of a forecast horizon
type ForecastPoint struct {
	Day        time.Time `json:"day"`
	Weekday    int       `json:"weekday"`
	Month      int       `json:"month"`
	PredictedY int       `json:"predicted_y"`
}

// ForecastResult is the ordered output of a single forecast call. Points after
// the first may have been derived from earlier predicted values.
type ForecastResult struct {
	Model       string          `json:"model"`
	RunID       string          `json:"run_id,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
	Points      []ForecastPoint `json:"points"`
}

// Len returns the number of forecast days
func (r *ForecastResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Points)
}

// Values returns the predicted counts in day order
func (r *ForecastResult) Values() []int {
	values := make([]int, len(r.Points))
	for i, p := range r.Points {
		values[i] = p.PredictedY
	}
	return values
}
