package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/transit-flow/internal/analytics"
	"github.com/irfndi/transit-flow/internal/config"
	"github.com/irfndi/transit-flow/internal/forecast"
	"github.com/irfndi/transit-flow/internal/middleware"
	"github.com/irfndi/transit-flow/internal/models"
)

// MaxHorizon bounds the horizon accepted over HTTP
const MaxHorizon = 366

// ForecastService produces recursive forecasts
type ForecastService interface {
	ForecastDayFlow(ctx context.Context, name string, req forecast.Request) (*models.ForecastResult, error)
	ForecastStation(ctx context.Context, station string, req forecast.Request) (*models.ForecastResult, error)
}

// ForecastResponse is a forecast plus its monthly roll-up
type ForecastResponse struct {
	*models.ForecastResult
	Monthly []analytics.MonthTotal `json:"monthly"`
}

type ForecastHandler struct {
	service        ForecastService
	defaultModel   string
	defaultHorizon int
}

func NewForecastHandler(service ForecastService, defaultModel string, defaultHorizon int) *ForecastHandler {
	if defaultHorizon < 1 {
		defaultHorizon = 7
	}
	return &ForecastHandler{
		service:        service,
		defaultModel:   defaultModel,
		defaultHorizon: defaultHorizon,
	}
}

// GetForecast handles GET /api/v1/forecast?model=&horizon=&start=
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	req, err := h.parseRequest(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	model := c.DefaultQuery("model", h.defaultModel)
	middleware.AddSpanAttribute(c, "forecast.model", model)
	middleware.AddSpanAttribute(c, "forecast.horizon", req.Horizon)

	result, err := h.service.ForecastDayFlow(c.Request.Context(), model, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newForecastResponse(result))
}

// GetStationForecast handles GET /api/v1/forecast/stations/:station
func (h *ForecastHandler) GetStationForecast(c *gin.Context) {
	req, err := h.parseRequest(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	station := c.Param("station")
	middleware.AddSpanAttribute(c, "forecast.station", station)
	middleware.AddSpanAttribute(c, "forecast.horizon", req.Horizon)

	result, err := h.service.ForecastStation(c.Request.Context(), station, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newForecastResponse(result))
}

func (h *ForecastHandler) parseRequest(c *gin.Context) (forecast.Request, error) {
	req := forecast.Request{Horizon: h.defaultHorizon}
	if raw := c.Query("horizon"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxHorizon {
			return req, fmt.Errorf("horizon must be an integer between 1 and %d", MaxHorizon)
		}
		req.Horizon = n
	}
	start, err := parseDay(c.Query("start"), "start")
	if err != nil {
		return req, err
	}
	req.Start = start
	return req, nil
}

func newForecastResponse(result *models.ForecastResult) ForecastResponse {
	return ForecastResponse{
		ForecastResult: result,
		Monthly:        analytics.MonthlyTotals(analytics.ForecastCounts(result)),
	}
}

// parseDay parses an optional day query value; empty gives the zero time
func parseDay(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse(config.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must use the %s layout", name, config.DateLayout)
	}
	return day, nil
}
