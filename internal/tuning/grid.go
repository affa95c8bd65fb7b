package tuning

import "math"

// ParamGrid is the candidate set for one hyperparameter
type ParamGrid struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Grid is searched in order; earlier winners are fixed for later entries
type Grid []ParamGrid

// DefaultGrid is the search used for the daily-flow model
func DefaultGrid() Grid {
	return Grid{
		{Name: "n_estimators", Values: linspace(100, 1000, 10)},
		{Name: "max_depth", Values: arange(1, 10)},
		{Name: "min_child_weight", Values: arange(1, 10)},
		{Name: "gamma", Values: linspace(0, 1, 10)},
		{Name: "subsample", Values: linspace(0, 1, 11)},
		{Name: "colsample_bytree", Values: linspace(0, 1, 11)[1:]},
		{Name: "reg_lambda", Values: linspace(0, 100, 11)},
		{Name: "reg_alpha", Values: linspace(0, 10, 11)},
		{Name: "learning_rate", Values: logspace(-2, 0, 10)},
	}
}

func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

func arange(from, to int) []float64 {
	out := make([]float64, 0, to-from+1)
	for v := from; v <= to; v++ {
		out = append(out, float64(v))
	}
	return out
}

func logspace(start, stop float64, n int) []float64 {
	exps := linspace(start, stop, n)
	for i, e := range exps {
		exps[i] = math.Pow(10, e)
	}
	return exps
}
