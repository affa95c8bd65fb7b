package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/training"
)

// Run is the context of one pipeline invocation. Nothing in it outlives the
// call that created it.
type Run struct {
	ID      string
	Model   string
	Started time.Time
	CV      training.CVConfig
	Log     *logrus.Entry
}

func newRun(logger *logrus.Logger, model string, cv training.CVConfig) *Run {
	id := uuid.NewString()
	return &Run{
		ID:      id,
		Model:   model,
		Started: time.Now(),
		CV:      cv,
		Log: logger.WithFields(logrus.Fields{
			"component": "pipeline",
			"run_id":    id,
			"model":     model,
		}),
	}
}
