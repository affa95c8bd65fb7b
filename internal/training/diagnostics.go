package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// BandScale is the z-value of the 95% interval around test predictions
const BandScale = 1.96

// DiagnosticPoint is one test-partition day with its interval
type DiagnosticPoint struct {
	Day       time.Time `json:"day"`
	Actual    float64   `json:"actual"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
	Anomaly   bool      `json:"anomaly"`
}

// Diagnostics compares test predictions with actual values inside a band of
// width cvMAE + 1.96*cvStd on either side.
type Diagnostics struct {
	Model       string            `json:"model"`
	GeneratedAt time.Time         `json:"generated_at"`
	CVMAE       float64           `json:"cv_mae"`
	CVStd       float64           `json:"cv_std"`
	Width       float64           `json:"width"`
	Anomalies   int               `json:"anomalies"`
	Points      []DiagnosticPoint `json:"points"`
}

// DiagnosticSink receives diagnostics after a successful training run
type DiagnosticSink interface {
	WriteDiagnostics(ctx context.Context, d *Diagnostics) error
}

func buildDiagnostics(model string, days []time.Time, actual, predicted []float64, cv *CVResult, at time.Time) *Diagnostics {
	width := cv.MAE() + BandScale*cv.Std
	d := &Diagnostics{
		Model:       model,
		GeneratedAt: at,
		CVMAE:       cv.MAE(),
		CVStd:       cv.Std,
		Width:       width,
		Points:      make([]DiagnosticPoint, len(actual)),
	}
	for i := range actual {
		p := DiagnosticPoint{
			Day:       days[i],
			Actual:    actual[i],
			Predicted: predicted[i],
			Lower:     predicted[i] - width,
			Upper:     predicted[i] + width,
		}
		p.Anomaly = p.Actual < p.Lower || p.Actual > p.Upper
		if p.Anomaly {
			d.Anomalies++
		}
		d.Points[i] = p
	}
	return d
}

// FileSink writes <dir>/<model>.diagnostics.json
type FileSink struct {
	Dir string
}

func (s *FileSink) WriteDiagnostics(_ context.Context, d *Diagnostics) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create diagnostics dir: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	path := filepath.Join(s.Dir, d.Model+".diagnostics.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}
	return nil
}
