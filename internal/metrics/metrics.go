// Package metrics exposes Prometheus instrumentation for training,
// forecasting, storage and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Training Metrics
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_training_runs_total",
			Help: "Total number of model training runs",
		},
		[]string{"model", "outcome"}, // "trained", "skipped", "failed"
	)

	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transit_training_duration_seconds",
			Help:    "Duration of model training including tuning",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"model"},
	)

	ModelTestMAE = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transit_model_test_mae",
			Help: "Mean absolute error of the latest trained model on its test partition",
		},
		[]string{"model"},
	)

	TuningCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_tuning_candidates_total",
			Help: "Hyperparameter candidates evaluated during tuning",
		},
		[]string{"param", "outcome"}, // "evaluated", "failed"
	)

	DataGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transit_feature_data_gaps_total",
			Help: "Days dropped for lacking three consecutive preceding days",
		},
	)

	// Forecast Metrics
	ForecastRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_forecast_requests_total",
			Help: "Total number of forecast requests",
		},
		[]string{"model", "outcome"}, // "ok", "error"
	)

	ForecastHorizon = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transit_forecast_horizon_days",
			Help:    "Requested forecast horizon in days",
			Buckets: []float64{1, 3, 7, 14, 30, 60, 90},
		},
	)

	ForecastCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transit_forecast_cache_hits_total",
			Help: "Forecasts served from the Redis cache",
		},
	)

	ForecastCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transit_forecast_cache_misses_total",
			Help: "Forecast cache lookups that missed",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of history queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of history query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		},
	)
)

// RecordTraining records the outcome of a training attempt
func RecordTraining(model, outcome string, duration time.Duration, testMAE float64) {
	TrainingRuns.WithLabelValues(model, outcome).Inc()
	if outcome == "trained" {
		TrainingDuration.WithLabelValues(model).Observe(duration.Seconds())
		ModelTestMAE.WithLabelValues(model).Set(testMAE)
	}
}

// RecordTuningCandidates records evaluated and failed candidates of one grid
func RecordTuningCandidates(param string, evaluated, failed int) {
	TuningCandidates.WithLabelValues(param, "evaluated").Add(float64(evaluated))
	TuningCandidates.WithLabelValues(param, "failed").Add(float64(failed))
}

// RecordForecast records a forecast call
func RecordForecast(model string, horizon int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ForecastRequests.WithLabelValues(model, outcome).Inc()
	ForecastHorizon.Observe(float64(horizon))
}

// RecordCacheLookup records a forecast cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		ForecastCacheHits.Inc()
	} else {
		ForecastCacheMisses.Inc()
	}
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
