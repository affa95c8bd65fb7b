package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthChecker is a dependency that can report its health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NamedCheck pairs a dependency with the name it is reported under
type NamedCheck struct {
	Name    string
	Checker HealthChecker
}

type HealthHandler struct {
	checks  []NamedCheck
	version string
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

func NewHealthHandler(version string, checks ...NamedCheck) *HealthHandler {
	return &HealthHandler{checks: checks, version: version}
}

// HealthCheck handles GET /health. Any failing dependency turns the status
// into "degraded" with 503.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	overall := "healthy"
	for _, check := range h.checks {
		if check.Checker == nil {
			continue
		}
		if err := check.Checker.HealthCheck(ctx); err != nil {
			services[check.Name] = "unhealthy: " + err.Error()
			overall = "degraded"
		} else {
			services[check.Name] = "healthy"
		}
	}

	status := http.StatusOK
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	})
}
