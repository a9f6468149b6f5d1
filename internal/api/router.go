package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jengzang/crime-risk-backend-go/internal/config"
	"github.com/jengzang/crime-risk-backend-go/internal/handler"
	"github.com/jengzang/crime-risk-backend-go/internal/middleware"
	"github.com/jengzang/crime-risk-backend-go/internal/service"
)

// Services bundles what the router exposes
type Services struct {
	Engine        *service.EngineService
	Stats         *service.StatsService
	Visualization *service.VisualizationService
}

// SetupRouter builds the HTTP engine
func SetupRouter(cfg *config.Config, svc Services, limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", handler.StaleHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Engine.Health(c.Request.Context()))
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	prediction := handler.NewPredictionHandler(svc.Engine)
	liveHandler := handler.NewLiveHandler(svc.Engine)
	stats := handler.NewStatsHandler(svc.Stats, svc.Visualization)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(limiter))
	{
		api.POST("/predict", prediction.Predict)
		api.GET("/hotspots", prediction.GetHotspots)
		api.GET("/risk-index", prediction.GetRiskIndex)

		live := api.Group("/live")
		{
			live.POST("/events", middleware.RequireJWT(cfg.Server.JWTSecret), liveHandler.IngestEvent)
			live.GET("/events", liveHandler.ListEvents)
		}

		api.GET("/anomalies", liveHandler.GetAnomalies)
		api.GET("/heatmap-data", stats.GetHeatmapData)
		api.GET("/analytics", stats.GetAnalytics)
	}

	return r
}
