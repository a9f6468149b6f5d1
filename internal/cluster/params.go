// Package cluster finds spatio-temporal hotspots with a density-reachability algorithm
// whose neighbour test requires closeness in space AND in time.
package cluster

import (
	"fmt"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/spatial"
)

// Params holds the clustering parameters. Both eps bounds are inclusive.
type Params struct {
	SpatialEpsMeters float64       // Great-circle radius in meters
	TemporalEps      time.Duration // Maximum |dt|
	MinPoints        int           // Neighbours, including the point itself, needed for a core point
}

// Validate rejects parameters that cannot produce a meaningful clustering.
func (p Params) Validate() error {
	if p.SpatialEpsMeters <= 0 {
		return models.NewValidationError("SpatialEpsMeters", "must be positive")
	}
	if p.TemporalEps < 0 {
		return models.NewValidationError("TemporalEps", "must not be negative")
	}
	if p.MinPoints < 1 {
		return models.NewValidationError("MinPoints", "must be at least 1")
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("eps=%.0fm/%s min_points=%d", p.SpatialEpsMeters, p.TemporalEps, p.MinPoints)
}

// IsNeighbor is the joint neighbour test: distance <= SpatialEpsMeters and
// |dt| <= TemporalEps. It is symmetric.
func IsNeighbor(a, b models.IncidentRecord, p Params) bool {
	dt := a.Timestamp.Sub(b.Timestamp)
	if dt < 0 {
		dt = -dt
	}
	if dt > p.TemporalEps {
		return false
	}
	return spatial.HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude) <= p.SpatialEpsMeters
}
