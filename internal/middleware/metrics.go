package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/logging"
	"github.com/irfndi/transit-flow/internal/metrics"
)

// RequestMetrics records Prometheus request metrics and logs each request.
// Endpoints are labelled by route template so path parameters do not
// explode label cardinality.
func RequestMetrics(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Traced(c.Request.URL.Path) {
			c.Next()
			return
		}

		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordAPIRequest(c.Request.Method, endpoint, status, duration)
		if logger != nil {
			logging.LogAPIRequest(logger, c.Request.Method, c.Request.URL.Path, status, duration)
		}
	}
}
