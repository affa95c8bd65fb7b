package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/api/handlers"
	"github.com/irfndi/transit-flow/internal/metrics"
	"github.com/irfndi/transit-flow/internal/middleware"
)

// Dependencies are the services the HTTP surface is built from
type Dependencies struct {
	Forecasts handlers.ForecastService
	Models    handlers.ModelService
	Analytics handlers.AnalyticsService
	Checks    []handlers.NamedCheck
	Logger    *logrus.Logger
}

// Options are the request-independent settings of the router
type Options struct {
	Version        string
	AdminAPIKey    string
	AllowedOrigins []string
	DefaultModel   string
	DefaultHorizon int
}

// SetupRoutes registers every endpoint on router. The caller installs the
// otelgin middleware first so spans exist for the telemetry middleware.
func SetupRoutes(router *gin.Engine, deps Dependencies, opts Options) {
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.TelemetryMiddleware())
	router.Use(middleware.RequestMetrics(deps.Logger))

	healthHandler := handlers.NewHealthHandler(opts.Version, deps.Checks...)
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	forecastHandler := handlers.NewForecastHandler(deps.Forecasts, opts.DefaultModel, opts.DefaultHorizon)
	modelHandler := handlers.NewModelHandler(deps.Models)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.Analytics)
	admin := middleware.NewAdminMiddleware(opts.AdminAPIKey)

	v1 := router.Group("/api/v1")
	{
		forecasts := v1.Group("/forecast")
		{
			forecasts.GET("", forecastHandler.GetForecast)
			forecasts.GET("/stations/:station", forecastHandler.GetStationForecast)
		}

		modelsGroup := v1.Group("/models")
		{
			modelsGroup.GET("/:name", modelHandler.GetModel)
			modelsGroup.POST("/:name/train", admin.RequireAdminAuth(), modelHandler.TrainModel)
			modelsGroup.DELETE("/:name", admin.RequireAdminAuth(), modelHandler.DeleteModel)
		}

		analyticsGroup := v1.Group("/analytics")
		{
			analyticsGroup.GET("/monthly", analyticsHandler.GetMonthly)
			analyticsGroup.GET("/weekday", analyticsHandler.GetWeekday)
		}
	}
}
