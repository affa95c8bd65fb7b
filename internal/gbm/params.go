package gbm

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownParam = errors.New("unknown hyperparameter")
	ErrInvalidParam = errors.New("invalid hyperparameter value")
)

// Params are the booster hyperparameters. Names follow the XGBoost
// conventions so tuning grids read the same as elsewhere.
type Params struct {
	NEstimators      int     `json:"n_estimators"`
	LearningRate     float64 `json:"learning_rate"`
	MaxDepth         int     `json:"max_depth"`
	MinChildWeight   float64 `json:"min_child_weight"`
	Gamma            float64 `json:"gamma"`
	Subsample        float64 `json:"subsample"`
	ColsampleByTree  float64 `json:"colsample_bytree"`
	ColsampleByLevel float64 `json:"colsample_bylevel"`
	RegLambda        float64 `json:"reg_lambda"`
	RegAlpha         float64 `json:"reg_alpha"`
	Seed             int64   `json:"seed"`
}

// BaselineParams is the starting point of a hyperparameter search
func BaselineParams() Params {
	return Params{
		NEstimators:      500,
		LearningRate:     0.3,
		MaxDepth:         6,
		MinChildWeight:   1,
		Gamma:            0,
		Subsample:        1,
		ColsampleByTree:  1,
		ColsampleByLevel: 1,
		RegLambda:        1,
		RegAlpha:         0,
		Seed:             33,
	}
}

// TunedParams is the result of a past search over the network's 2020
// ridership and is used when tuning is switched off.
func TunedParams() Params {
	p := BaselineParams()
	p.NEstimators = 100
	p.Gamma = 0.89
	p.MaxDepth = 7
	p.RegLambda = 50
	p.RegAlpha = 5
	return p
}

// Validate rejects values the booster cannot train with
func (p Params) Validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("%w: n_estimators=%d", ErrInvalidParam, p.NEstimators)
	case p.LearningRate <= 0 || math.IsNaN(p.LearningRate):
		return fmt.Errorf("%w: learning_rate=%v", ErrInvalidParam, p.LearningRate)
	case p.MaxDepth < 1:
		return fmt.Errorf("%w: max_depth=%d", ErrInvalidParam, p.MaxDepth)
	case p.MinChildWeight < 0:
		return fmt.Errorf("%w: min_child_weight=%v", ErrInvalidParam, p.MinChildWeight)
	case p.Gamma < 0:
		return fmt.Errorf("%w: gamma=%v", ErrInvalidParam, p.Gamma)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("%w: subsample=%v", ErrInvalidParam, p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return fmt.Errorf("%w: colsample_bytree=%v", ErrInvalidParam, p.ColsampleByTree)
	case p.ColsampleByLevel <= 0 || p.ColsampleByLevel > 1:
		return fmt.Errorf("%w: colsample_bylevel=%v", ErrInvalidParam, p.ColsampleByLevel)
	case p.RegLambda < 0:
		return fmt.Errorf("%w: reg_lambda=%v", ErrInvalidParam, p.RegLambda)
	case p.RegAlpha < 0:
		return fmt.Errorf("%w: reg_alpha=%v", ErrInvalidParam, p.RegAlpha)
	}
	return nil
}

// With returns a copy of p with the named hyperparameter set to value.
// "eta" is accepted as an alias of learning_rate.
func (p Params) With(name string, value float64) (Params, error) {
	switch name {
	case "n_estimators":
		p.NEstimators = int(math.Round(value))
	case "learning_rate", "eta":
		p.LearningRate = value
	case "max_depth":
		p.MaxDepth = int(math.Round(value))
	case "min_child_weight":
		p.MinChildWeight = value
	case "gamma":
		p.Gamma = value
	case "subsample":
		p.Subsample = value
	case "colsample_bytree":
		p.ColsampleByTree = value
	case "colsample_bylevel":
		p.ColsampleByLevel = value
	case "reg_lambda":
		p.RegLambda = value
	case "reg_alpha":
		p.RegAlpha = value
	case "seed":
		p.Seed = int64(value)
	default:
		return p, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return p, nil
}

// Get reads the named hyperparameter
func (p Params) Get(name string) (float64, error) {
	switch name {
	case "n_estimators":
		return float64(p.NEstimators), nil
	case "learning_rate", "eta":
		return p.LearningRate, nil
	case "max_depth":
		return float64(p.MaxDepth), nil
	case "min_child_weight":
		return p.MinChildWeight, nil
	case "gamma":
		return p.Gamma, nil
	case "subsample":
		return p.Subsample, nil
	case "colsample_bytree":
		return p.ColsampleByTree, nil
	case "colsample_bylevel":
		return p.ColsampleByLevel, nil
	case "reg_lambda":
		return p.RegLambda, nil
	case "reg_alpha":
		return p.RegAlpha, nil
	case "seed":
		return float64(p.Seed), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownParam, name)
}
