// Package store persists trained models by name.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/goccy/go-json"

	"github.com/irfndi/transit-flow/internal/training"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrInvalidName   = errors.New("invalid model name")
)

// NotFoundError wraps ErrModelNotFound with the requested name
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q: %s", e.Name, ErrModelNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrModelNotFound
}

// Store saves and loads trained models. Saving an existing name replaces
// it; concurrent saves to the same name are not coordinated.
type Store interface {
	Save(ctx context.Context, name string, model *training.TrainedModel) error
	Load(ctx context.Context, name string) (*training.TrainedModel, error)
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateName rejects names that are unsafe as file names or keys
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func encode(model *training.TrainedModel) ([]byte, error) {
	if model == nil || model.Regressor == nil {
		return nil, fmt.Errorf("cannot store an empty model")
	}
	data, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return data, nil
}

func decode(name string, data []byte) (*training.TrainedModel, error) {
	var model training.TrainedModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("unmarshal model %q: %w", name, err)
	}
	if model.Regressor == nil {
		return nil, fmt.Errorf("model %q has no regressor", name)
	}
	return &model, nil
}
