package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/service"
	"github.com/jengzang/crime-risk-backend-go/pkg/response"
)

// PredictionHandler handles risk prediction and hotspot requests
type PredictionHandler struct {
	engine *service.EngineService
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(engine *service.EngineService) *PredictionHandler {
	return &PredictionHandler{engine: engine}
}

// Predict handles POST /api/v1/predict
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req models.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	prediction, err := h.engine.PredictRisk(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, prediction)
}

// GetHotspots handles GET /api/v1/hotspots
func (h *PredictionHandler) GetHotspots(c *gin.Context) {
	var filter models.HotspotFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	hotspots, err := h.engine.GetHotspots(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	if hotspots.Stale {
		c.Header(StaleHeader, "true")
	}
	response.Success(c, hotspots)
}

// GetRiskIndex handles GET /api/v1/risk-index
func (h *PredictionHandler) GetRiskIndex(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20, 1, 500)
	if !ok {
		return
	}
	response.Success(c, h.engine.RiskIndex(c.Request.Context(), limit))
}
