package training

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DegenerateMetricWarning marks a metric that could not use every row.
// It is informational and never fails a training run.
type DegenerateMetricWarning struct {
	Metric  string
	Skipped int
	Rows    int
}

func (w *DegenerateMetricWarning) Error() string {
	return fmt.Sprintf("%s is degenerate: %d of %d rows have a zero target and were skipped", w.Metric, w.Skipped, w.Rows)
}

// Report holds regression metrics over one partition
type Report struct {
	Partition  string  `json:"partition"`
	Rows       int     `json:"rows"`
	MAE        float64 `json:"mae"`
	MAPE       float64 `json:"mape"`
	MAPERows   int     `json:"mape_rows"`
	MSE        float64 `json:"mse"`
	R2         float64 `json:"r2"`
	Degenerate bool    `json:"degenerate,omitempty"`
}

// Evaluate scores predictions against actual values. A non-nil warning is
// returned alongside the report when some targets are zero.
func Evaluate(partition string, actual, predicted []float64) (Report, *DegenerateMetricWarning) {
	r := Report{Partition: partition, Rows: len(actual)}
	if len(actual) == 0 || len(actual) != len(predicted) {
		return r, nil
	}

	var absSum, sqSum, pctSum, mean float64
	for i, y := range actual {
		diff := y - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		mean += y
		if y != 0 {
			pctSum += math.Abs(diff / y)
			r.MAPERows++
		}
	}
	n := float64(len(actual))
	mean /= n
	r.MAE = absSum / n
	r.MSE = sqSum / n

	var ssTot float64
	for _, y := range actual {
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot > 0 {
		r.R2 = 1 - sqSum/ssTot
	}

	if r.MAPERows > 0 {
		r.MAPE = pctSum / float64(r.MAPERows) * 100
	}
	if r.MAPERows < r.Rows {
		r.Degenerate = true
		return r, &DegenerateMetricWarning{Metric: "mape", Skipped: r.Rows - r.MAPERows, Rows: r.Rows}
	}
	return r, nil
}

// RoundedReport is the presentation form of a Report
type RoundedReport struct {
	Partition string          `json:"partition"`
	Rows      int             `json:"rows"`
	MAE       decimal.Decimal `json:"mae"`
	MAPE      decimal.Decimal `json:"mape"`
	MSE       decimal.Decimal `json:"mse"`
	R2        decimal.Decimal `json:"r2"`
}

func (r Report) Rounded(places int32) RoundedReport {
	return RoundedReport{
		Partition: r.Partition,
		Rows:      r.Rows,
		MAE:       decimal.NewFromFloat(r.MAE).Round(places),
		MAPE:      decimal.NewFromFloat(r.MAPE).Round(places),
		MSE:       decimal.NewFromFloat(r.MSE).Round(places),
		R2:        decimal.NewFromFloat(r.R2).Round(places),
	}
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(values)))
}
