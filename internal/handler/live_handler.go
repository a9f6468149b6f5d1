package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/service"
	"github.com/jengzang/crime-risk-backend-go/pkg/response"
)

// LiveHandler handles live feed ingestion and anomaly requests
type LiveHandler struct {
	engine *service.EngineService
}

// NewLiveHandler creates a new live handler
func NewLiveHandler(engine *service.EngineService) *LiveHandler {
	return &LiveHandler{engine: engine}
}

// IngestEvent handles POST /api/v1/live/events
func (h *LiveHandler) IngestEvent(c *gin.Context) {
	var ev models.LiveEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.BadRequest(c, "Invalid event: "+err.Error())
		return
	}

	result, err := h.engine.IngestLiveEvent(c.Request.Context(), ev)
	switch {
	case result.Status == models.IngestRejected && models.IsValidation(err):
		response.ErrorWithData(c, http.StatusBadRequest, result.Reason, result)
	case err != nil:
		respondError(c, err)
	case result.Status == models.IngestDuplicate:
		response.Success(c, result)
	default:
		response.Accepted(c, result)
	}
}

// ListEvents handles GET /api/v1/live/events
func (h *LiveHandler) ListEvents(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 100, 1, 1000)
	if !ok {
		return
	}
	response.Success(c, h.engine.LiveFeed(c.Request.Context(), limit))
}

// GetAnomalies handles GET /api/v1/anomalies
func (h *LiveHandler) GetAnomalies(c *gin.Context) {
	var filter models.AnomalyFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	flags, err := h.engine.GetAnomalies(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, flags)
}

// queryInt reads an optional integer query parameter clamped to [min, max]. It writes a
// 400 response and returns false when the value is not a number.
func queryInt(c *gin.Context, name string, def, min, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(c, "Invalid "+name+" parameter")
		return 0, false
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v, true
}
