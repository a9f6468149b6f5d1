package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/service"
	"github.com/jengzang/crime-risk-backend-go/pkg/response"
)

// StatsHandler handles HTTP requests for analytics and heatmap data
type StatsHandler struct {
	statsService *service.StatsService
	vizService   *service.VisualizationService
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(statsService *service.StatsService, vizService *service.VisualizationService) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		vizService:   vizService,
	}
}

// GetAnalytics handles GET /api/v1/analytics
func (h *StatsHandler) GetAnalytics(c *gin.Context) {
	analytics, err := h.statsService.GetAnalytics(c.Query("crime_type"), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, analytics)
}

// GetHeatmapData handles GET /api/v1/heatmap-data
func (h *StatsHandler) GetHeatmapData(c *gin.Context) {
	var filter models.HeatmapFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	heatmap, err := h.vizService.GetHeatmap(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, heatmap)
}
