package dataset

import (
	"errors"
	"fmt"
)

var ErrInvalidFolds = errors.New("fold count must be at least 2")

// Fold trains on rows [0, TrainEnd) and validates on [TestStart, TestEnd)
type Fold struct {
	TrainEnd  int
	TestStart int
	TestEnd   int
}

// TimeSeriesFolds produces k expanding-window folds over n rows. Validation
// blocks are contiguous, disjoint and always follow their training rows.
func TimeSeriesFolds(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFolds, k)
	}
	size := n / (k + 1)
	if size < 1 {
		return nil, fmt.Errorf("%w: %d rows cannot form %d folds", ErrInsufficientRows, n, k)
	}

	first := n - k*size
	folds := make([]Fold, k)
	for i := range folds {
		start := first + i*size
		folds[i] = Fold{TrainEnd: start, TestStart: start, TestEnd: start + size}
	}
	return folds, nil
}
