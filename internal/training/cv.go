package training

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/irfndi/transit-flow/internal/dataset"
	"github.com/irfndi/transit-flow/internal/gbm"
)

// DefaultFolds matches the five time-series folds used for tuning
const DefaultFolds = 5

// CVConfig controls cross-validation
type CVConfig struct {
	Folds      int
	MaxWorkers int
}

func (c CVConfig) folds() int {
	if c.Folds == 0 {
		return DefaultFolds
	}
	return c.Folds
}

// CVResult holds per-fold negative MAE scores in fold order
type CVResult struct {
	Scores []float64
	Mean   float64
	Std    float64
}

// MAE is the mean absolute error across folds
func (r *CVResult) MAE() float64 {
	return -r.Mean
}

// CrossValidate fits params on every expanding-window fold of ds and scores
// the following block. Folds are evaluated concurrently; any failed fold
// fails the whole evaluation.
func CrossValidate(ctx context.Context, ds *dataset.Dataset, params gbm.Params, cv CVConfig) (*CVResult, error) {
	folds, err := dataset.TimeSeriesFolds(ds.Len(), cv.folds())
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	scores := make([]float64, len(folds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(WorkerLimit(cv.MaxWorkers))

	for i, fold := range folds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			train := ds.Slice(0, fold.TrainEnd)
			test := ds.Slice(fold.TestStart, fold.TestEnd)

			reg, err := gbm.Fit(train.X, train.Y, params)
			if err != nil {
				return fmt.Errorf("fold %d: %w", i, err)
			}
			pred, err := reg.PredictBatch(test.X)
			if err != nil {
				return fmt.Errorf("fold %d: %w", i, err)
			}
			report, _ := Evaluate("cv", test.Y, pred)
			scores[i] = -report.MAE
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mean, std := meanStd(scores)
	return &CVResult{Scores: scores, Mean: mean, Std: std}, nil
}
