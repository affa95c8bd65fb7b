package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Outside development the output is JSON so
// log shippers can index fields.
func New(level string, environment string) *logrus.Logger {
	return NewWithOutput(level, environment, os.Stdout)
}

func NewWithOutput(level string, environment string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(ParseLogrusLevel(level))

	if strings.ToLower(environment) == "development" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}
	return logger
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithComponent creates a logger entry with component context
func WithComponent(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// LogStartup logs application startup information
func LogStartup(logger *logrus.Logger, service string, version string, port int) {
	logger.WithFields(logrus.Fields{
		"service": service,
		"version": version,
		"port":    port,
		"event":   "startup",
	}).Info("Application startup")
}

// LogShutdown logs application shutdown information
func LogShutdown(logger *logrus.Logger, service string, reason string) {
	logger.WithFields(logrus.Fields{
		"service": service,
		"reason":  reason,
		"event":   "shutdown",
	}).Info("Application shutdown")
}

// LogAPIRequest logs one served HTTP request
func LogAPIRequest(logger *logrus.Logger, method string, path string, status int, duration time.Duration) {
	logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
		"event":       "api",
	}).Info("API request")
}

// LogPipelineEvent logs a training or forecasting milestone of a run
func LogPipelineEvent(entry *logrus.Entry, event string, details logrus.Fields) {
	entry.WithFields(details).WithField("event", event).Info("Pipeline event")
}
