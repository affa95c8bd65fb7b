package training

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/dataset"
	"github.com/irfndi/transit-flow/internal/gbm"
)

// Trainer fits models and reports their quality on held-out rows
type Trainer struct {
	logger *logrus.Logger
	sink   DiagnosticSink
	now    func() time.Time
}

// NewTrainer creates a trainer. sink may be nil to skip diagnostics.
func NewTrainer(logger *logrus.Logger, sink DiagnosticSink) *Trainer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Trainer{logger: logger, sink: sink, now: time.Now}
}

// Train fits params on train and evaluates on test. When test is empty the
// report covers the training rows instead.
func (t *Trainer) Train(ctx context.Context, name string, train, test *dataset.Dataset, params gbm.Params, cv CVConfig) (*TrainedModel, *Report, error) {
	if train.Len() == 0 {
		return nil, nil, dataset.ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if test.Len() > 0 {
		if err := train.Schema.Compatible(test.Schema); err != nil {
			return nil, nil, err
		}
	}

	log := t.logger.WithFields(logrus.Fields{
		"component": "trainer",
		"model":     name,
		"rows":      train.Len(),
	})
	started := time.Now()

	reg, err := gbm.Fit(train.X, train.Y, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit %s: %w", name, err)
	}

	eval, partition := test, "test"
	if test.Len() == 0 {
		eval, partition = train, "train"
	}
	predicted, err := reg.PredictBatch(eval.X)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to score %s partition: %w", partition, err)
	}
	report, warning := Evaluate(partition, eval.Y, predicted)
	if warning != nil {
		log.WithError(warning).Warn("Metric computed over a subset of rows")
	}

	model := &TrainedModel{
		Name:         name,
		Params:       params,
		Schema:       train.Schema,
		Regressor:    reg,
		Metrics:      report,
		TrainedAt:    t.now().UTC(),
		TrainingRows: train.Len(),
	}

	log.WithFields(logrus.Fields{
		"partition": partition,
		"mae":       report.MAE,
		"mape":      report.MAPE,
		"r2":        report.R2,
		"duration":  time.Since(started).String(),
	}).Info("Model trained")

	if t.sink != nil && partition == "test" {
		t.writeDiagnostics(ctx, log, model, train, test, predicted, cv)
	}
	return model, &report, nil
}

func (t *Trainer) writeDiagnostics(ctx context.Context, log *logrus.Entry, model *TrainedModel, train, test *dataset.Dataset, predicted []float64, cv CVConfig) {
	cvResult, err := CrossValidate(ctx, train, model.Params, cv)
	if err != nil {
		log.WithError(err).Warn("Skipping diagnostics: cross-validation failed")
		return
	}
	d := buildDiagnostics(model.Name, test.Days, test.Y, predicted, cvResult, model.TrainedAt)
	if err := t.sink.WriteDiagnostics(ctx, d); err != nil {
		log.WithError(err).Warn("Failed to write diagnostics")
		return
	}
	log.WithField("anomalies", d.Anomalies).Debug("Diagnostics written")
}
