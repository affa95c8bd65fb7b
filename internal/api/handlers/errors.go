package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/transit-flow/internal/database"
	"github.com/irfndi/transit-flow/internal/dataset"
	"github.com/irfndi/transit-flow/internal/features"
	"github.com/irfndi/transit-flow/internal/forecast"
	"github.com/irfndi/transit-flow/internal/gbm"
	"github.com/irfndi/transit-flow/internal/middleware"
	"github.com/irfndi/transit-flow/internal/pipeline"
	"github.com/irfndi/transit-flow/internal/store"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	var (
		notFound *pipeline.ModelNotFoundError
		mismatch *dataset.EncodingMismatchError
		gap      *features.DataGapError
	)
	switch {
	case errors.Is(err, database.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &notFound), errors.Is(err, store.ErrModelNotFound):
		return http.StatusNotFound
	case errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, forecast.ErrInvalidHorizon),
		errors.Is(err, store.ErrInvalidName),
		errors.Is(err, dataset.ErrInvalidRatio),
		errors.Is(err, gbm.ErrInvalidParam),
		errors.Is(err, gbm.ErrUnknownParam):
		return http.StatusBadRequest
	case errors.Is(err, forecast.ErrStartNotFound),
		errors.Is(err, forecast.ErrNoUnknownDays),
		errors.Is(err, forecast.ErrHorizonTooLong),
		errors.Is(err, dataset.ErrInsufficientRows),
		errors.Is(err, dataset.ErrEmpty),
		errors.As(err, &gap):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server-side failures are
// attached to the request so the telemetry middleware records them.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		middleware.RecordError(c, err, http.StatusText(status))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   http.StatusText(http.StatusBadRequest),
		Message: message,
	})
}
