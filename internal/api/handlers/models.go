package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/transit-flow/internal/gbm"
	"github.com/irfndi/transit-flow/internal/pipeline"
	"github.com/irfndi/transit-flow/internal/training"
)

// ReportPlaces is the precision of metrics returned over HTTP
const ReportPlaces = 4

// ModelService manages stored models
type ModelService interface {
	Model(ctx context.Context, name string) (*training.TrainedModel, error)
	Train(ctx context.Context, name string, opts pipeline.TrainOptions) (*pipeline.TrainOutcome, error)
	TrainStation(ctx context.Context, station string, opts pipeline.TrainOptions) (*pipeline.TrainOutcome, error)
	Invalidate(ctx context.Context, name string) error
}

// TrainRequest is the optional body of a training request
type TrainRequest struct {
	Tune       *bool   `json:"tune"`
	TrainRatio float64 `json:"train_ratio"`
	Station    string  `json:"station"`
}

type ModelResponse struct {
	Name         string                 `json:"name"`
	TrainedAt    time.Time              `json:"trained_at"`
	TrainingRows int                    `json:"training_rows"`
	Params       gbm.Params             `json:"params"`
	Columns      []string               `json:"columns"`
	Metrics      training.RoundedReport `json:"metrics"`
	Importance   []training.Importance  `json:"importance"`
}

type TrainResponse struct {
	RunID   string         `json:"run_id"`
	Model   ModelResponse  `json:"model"`
	Records int            `json:"records"`
	Gaps    int            `json:"gaps"`
	Tuning  *tuningSummary `json:"tuning,omitempty"`
}

type tuningSummary struct {
	BestScore float64 `json:"best_score"`
	Steps     int     `json:"steps"`
}

type ModelHandler struct {
	service ModelService
}

func NewModelHandler(service ModelService) *ModelHandler {
	return &ModelHandler{service: service}
}

// GetModel handles GET /api/v1/models/:name
func (h *ModelHandler) GetModel(c *gin.Context) {
	model, err := h.service.Model(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newModelResponse(model))
}

// TrainModel handles POST /api/v1/models/:name/train. With a station in the
// body the station model is trained and :name is ignored.
func (h *ModelHandler) TrainModel(c *gin.Context) {
	var body TrainRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	opts := pipeline.TrainOptions{Tune: body.Tune, TrainRatio: body.TrainRatio}

	var (
		outcome *pipeline.TrainOutcome
		err     error
	)
	if body.Station != "" {
		outcome, err = h.service.TrainStation(c.Request.Context(), body.Station, opts)
	} else {
		outcome, err = h.service.Train(c.Request.Context(), c.Param("name"), opts)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	resp := TrainResponse{
		RunID:   outcome.RunID,
		Model:   newModelResponse(outcome.Model),
		Records: outcome.Records,
		Gaps:    outcome.Gaps,
	}
	if outcome.Tuning != nil {
		resp.Tuning = &tuningSummary{BestScore: outcome.Tuning.BestScore, Steps: len(outcome.Tuning.Steps)}
	}
	c.JSON(http.StatusCreated, resp)
}

// DeleteModel handles DELETE /api/v1/models/:name
func (h *ModelHandler) DeleteModel(c *gin.Context) {
	if err := h.service.Invalidate(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func newModelResponse(m *training.TrainedModel) ModelResponse {
	return ModelResponse{
		Name:         m.Name,
		TrainedAt:    m.TrainedAt,
		TrainingRows: m.TrainingRows,
		Params:       m.Params,
		Columns:      m.Schema.Columns,
		Metrics:      m.Metrics.Rounded(ReportPlaces),
		Importance:   m.Importance(),
	}
}
