package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/pkg/response"
)

// StaleHeader is set on hotspot responses served while a newer recompute is running.
const StaleHeader = "X-Cluster-Stale"

// respondError maps domain errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	var (
		ve *models.ValidationError
		mu *models.ModelUnavailableError
		fe *models.FeatureShapeError
	)
	switch {
	case errors.As(err, &ve):
		response.BadRequest(c, ve.Error())
	case errors.As(err, &mu):
		response.ServiceUnavailable(c, mu.Error())
	case errors.As(err, &fe):
		logging.Error().Err(err).Str("path", c.FullPath()).Msg("feature shape mismatch")
		response.InternalError(c, "internal model error")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusServiceUnavailable, "request cancelled")
	default:
		logging.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		response.InternalError(c, err.Error())
	}
}
