package gbm

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var (
	ErrNoRows = errors.New("no training rows")
	ErrShape  = errors.New("feature width mismatch")
)

// Regressor is a fitted ensemble of regression trees under squared error.
// Its exported fields are the whole persisted state.
type Regressor struct {
	Params    Params  `json:"params"`
	BaseScore float64 `json:"base_score"`
	Features  int     `json:"features"`
	Trees     []Tree  `json:"trees"`
}

// Fit grows p.NEstimators trees on x/y. Identical inputs and seed give an
// identical ensemble.
func Fit(x [][]float64, y []float64, p Params) (*Regressor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(y)
	if n == 0 {
		return nil, ErrNoRows
	}
	if len(x) != n {
		return nil, fmt.Errorf("%w: %d feature rows for %d targets", ErrShape, len(x), n)
	}
	width := len(x[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: zero-width rows", ErrShape)
	}
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), width)
		}
	}

	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}

	allRows := make([]int, n)
	for i := range allRows {
		allRows[i] = i
	}
	allCols := make([]int, width)
	for i := range allCols {
		allCols[i] = i
	}

	rng := rand.New(rand.NewSource(p.Seed))
	grad := make([]float64, n)
	b := &treeBuilder{x: x, grad: grad, params: p, rng: rng}
	reg := &Regressor{Params: p, BaseScore: base, Features: width, Trees: make([]Tree, 0, p.NEstimators)}

	for round := 0; round < p.NEstimators; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		rows := sampleIndices(rng, allRows, p.Subsample)
		cols := sampleIndices(rng, allCols, p.ColsampleByTree)
		tree := b.build(rows, cols)
		for i := range pred {
			pred[i] += tree.predict(x[i])
		}
		reg.Trees = append(reg.Trees, tree)
	}
	return reg, nil
}

// Predict scores a single row
func (r *Regressor) Predict(x []float64) (float64, error) {
	if len(x) != r.Features {
		return 0, fmt.Errorf("%w: got %d columns, want %d", ErrShape, len(x), r.Features)
	}
	out := r.BaseScore
	for i := range r.Trees {
		out += r.Trees[i].predict(x)
	}
	return out, nil
}

func (r *Regressor) PredictBatch(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		v, err := r.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// FeatureImportance is the number of splits per feature index across the
// ensemble, ordered by count descending then index.
type FeatureImportance struct {
	Feature int `json:"feature"`
	Splits  int `json:"splits"`
}

func (r *Regressor) Importance() []FeatureImportance {
	counts := make([]int, r.Features)
	for _, t := range r.Trees {
		for _, n := range t.Nodes {
			if !n.Leaf {
				counts[n.Feature]++
			}
		}
	}
	out := make([]FeatureImportance, 0, len(counts))
	for f, c := range counts {
		if c > 0 {
			out = append(out, FeatureImportance{Feature: f, Splits: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Splits != out[j].Splits {
			return out[i].Splits > out[j].Splits
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}
