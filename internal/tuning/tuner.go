package tuning

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/dataset"
	"github.com/irfndi/transit-flow/internal/gbm"
	"github.com/irfndi/transit-flow/internal/training"
)

// Step records the outcome of searching one hyperparameter
type Step struct {
	Param       string  `json:"param"`
	Chosen      float64 `json:"chosen"`
	StepBest    float64 `json:"step_best"`
	RunningBest float64 `json:"running_best"`
	Improved    bool    `json:"improved"`
	Failed      int     `json:"failed"`
}

// Result is the tuned parameter set and the search trace
type Result struct {
	Params    gbm.Params `json:"params"`
	BestScore float64    `json:"best_score"`
	Steps     []Step     `json:"steps"`
}

// Evaluator scores one candidate; higher is better
type Evaluator func(ctx context.Context, ds *dataset.Dataset, params gbm.Params, cv training.CVConfig) (float64, error)

// Tuner runs a greedy coordinate search over a Grid
type Tuner struct {
	logger   *logrus.Logger
	evaluate Evaluator
}

func NewTuner(logger *logrus.Logger) *Tuner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tuner{logger: logger, evaluate: cvScore}
}

func cvScore(ctx context.Context, ds *dataset.Dataset, params gbm.Params, cv training.CVConfig) (float64, error) {
	res, err := training.CrossValidate(ctx, ds, params, cv)
	if err != nil {
		return 0, err
	}
	return res.Mean, nil
}

// Tune searches grid entries in order starting from baseline. For each
// entry the best-scoring candidate is kept only when it beats the best
// score seen so far; otherwise the current value stays. Candidates whose
// evaluation fails are skipped, and a wholly failed entry keeps its value.
func (t *Tuner) Tune(ctx context.Context, train *dataset.Dataset, grid Grid, baseline gbm.Params, cv training.CVConfig) (*Result, error) {
	if train.Len() == 0 {
		return nil, dataset.ErrEmpty
	}

	current := baseline
	best := -math.MaxFloat64
	res := &Result{Steps: make([]Step, 0, len(grid))}

	for _, pg := range grid {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := t.logger.WithFields(logrus.Fields{"component": "tuner", "param": pg.Name})

		chosen, err := current.Get(pg.Name)
		if err != nil {
			return nil, err
		}

		step := Step{Param: pg.Name, StepBest: -math.MaxFloat64}
		var stepParams gbm.Params
		for _, v := range pg.Values {
			candidate, err := current.With(pg.Name, v)
			if err != nil {
				return nil, err
			}
			score, err := t.evaluate(ctx, train, candidate, cv)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				step.Failed++
				log.WithError(err).WithField("value", v).Debug("Candidate failed")
				continue
			}
			if score > step.StepBest {
				step.StepBest = score
				stepParams = candidate
				chosen = v
			}
		}

		if step.Failed == len(pg.Values) {
			log.Warn("Every candidate failed, keeping current value")
		} else if step.StepBest > best {
			best = step.StepBest
			current = stepParams
			step.Improved = true
		} else {
			chosen, _ = current.Get(pg.Name)
		}
		step.Chosen = chosen
		step.RunningBest = best
		res.Steps = append(res.Steps, step)

		log.WithFields(logrus.Fields{
			"chosen":       step.Chosen,
			"step_best":    step.StepBest,
			"running_best": best,
			"improved":     step.Improved,
		}).Info("Tuned hyperparameter")
	}

	res.Params = current
	res.BestScore = best
	return res, nil
}
