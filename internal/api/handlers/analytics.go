package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/transit-flow/internal/analytics"
)

// AnalyticsService serves dashboard aggregates
type AnalyticsService interface {
	Monthly(ctx context.Context, from, to time.Time) ([]analytics.MonthTotal, error)
	Weekday(ctx context.Context, from, to time.Time) ([]analytics.WeekdayMean, error)
}

type AnalyticsHandler struct {
	service AnalyticsService
}

func NewAnalyticsHandler(service AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// GetMonthly handles GET /api/v1/analytics/monthly?from=&to=
func (h *AnalyticsHandler) GetMonthly(c *gin.Context) {
	from, to, ok := dayRange(c)
	if !ok {
		return
	}
	months, err := h.service.Monthly(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": months})
}

// GetWeekday handles GET /api/v1/analytics/weekday?from=&to=
func (h *AnalyticsHandler) GetWeekday(c *gin.Context) {
	from, to, ok := dayRange(c)
	if !ok {
		return
	}
	weeks, err := h.service.Weekday(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": weeks})
}

func dayRange(c *gin.Context) (from, to time.Time, ok bool) {
	from, err := parseDay(c.Query("from"), "from")
	if err != nil {
		badRequest(c, err.Error())
		return from, to, false
	}
	to, err = parseDay(c.Query("to"), "to")
	if err != nil {
		badRequest(c, err.Error())
		return from, to, false
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		badRequest(c, "to must not be before from")
		return from, to, false
	}
	return from, to, true
}
