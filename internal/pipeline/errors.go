package pipeline

import (
	"fmt"

	"github.com/irfndi/transit-flow/internal/store"
)

// ModelNotFoundError is returned when no artifact exists and a model could
// not be trained in its place. It matches store.ErrModelNotFound.
type ModelNotFoundError struct {
	Name  string
	Cause error
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q is not stored and could not be trained: %v", e.Name, e.Cause)
}

func (e *ModelNotFoundError) Unwrap() []error {
	return []error{store.ErrModelNotFound, e.Cause}
}
