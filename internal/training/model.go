package training

import (
	"fmt"
	"time"

	"github.com/irfndi/transit-flow/internal/dataset"
	"github.com/irfndi/transit-flow/internal/gbm"
	"github.com/irfndi/transit-flow/internal/models"
)

// TrainedModel is an immutable fitted regressor together with everything
// needed to score new rows. Its fields are the persisted artifact.
type TrainedModel struct {
	Name         string         `json:"name"`
	Params       gbm.Params     `json:"params"`
	Schema       dataset.Schema `json:"schema"`
	Regressor    *gbm.Regressor `json:"regressor"`
	Metrics      Report         `json:"metrics"`
	TrainedAt    time.Time      `json:"trained_at"`
	TrainingRows int            `json:"training_rows"`
}

// Predict scores an already encoded feature vector
func (m *TrainedModel) Predict(x []float64) (float64, error) {
	if m == nil || m.Regressor == nil {
		return 0, fmt.Errorf("model has no regressor")
	}
	return m.Regressor.Predict(x)
}

// PredictRecord encodes rec with the model's schema and scores it
func (m *TrainedModel) PredictRecord(rec models.DailyRecord) (float64, error) {
	x, err := m.Schema.Encode(rec)
	if err != nil {
		return 0, err
	}
	return m.Predict(x)
}

// Importance is split-count importance keyed by column name
type Importance struct {
	Column string `json:"column"`
	Splits int    `json:"splits"`
}

func (m *TrainedModel) Importance() []Importance {
	if m == nil || m.Regressor == nil {
		return nil
	}
	raw := m.Regressor.Importance()
	out := make([]Importance, 0, len(raw))
	for _, fi := range raw {
		name := fmt.Sprintf("f%d", fi.Feature)
		if fi.Feature < len(m.Schema.Columns) {
			name = m.Schema.Columns[fi.Feature]
		}
		out = append(out, Importance{Column: name, Splits: fi.Splits})
	}
	return out
}
