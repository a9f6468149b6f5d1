package ml

import (
	"fmt"

	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/stats"
)

// LabelPercentile is the local-density percentile above which a location is High Risk.
const LabelPercentile = 75.0

// TrainingSet is the labelled historical data a classifier is fitted on. Vectors are
// built the way queries are (location and time only), so training and serving agree.
type TrainingSet struct {
	Schema           features.Schema
	Vectors          []features.Vector
	Densities        []float64 // Raw neighbour counts within the schema radius
	Labels           []bool
	DensityThreshold float64
}

// NewTrainingSet featurizes and labels historical records. Live records are refused so
// streamed noise never feeds back into the models.
func NewTrainingSet(records []models.IncidentRecord, schema features.Schema) (*TrainingSet, error) {
	if len(records) == 0 {
		return nil, models.NewValidationError("records", "no historical records to train on")
	}
	if err := requireHistorical(records); err != nil {
		return nil, err
	}

	b := features.NewBuilder(schema)
	schema = b.Schema()
	ctx := features.NewContext(records, schema.RadiusMeters)

	set := &TrainingSet{
		Schema:    schema,
		Vectors:   make([]features.Vector, len(records)),
		Densities: make([]float64, len(records)),
		Labels:    make([]bool, len(records)),
	}
	for i, r := range records {
		set.Vectors[i] = b.Build(features.Query{Latitude: r.Latitude, Longitude: r.Longitude, Time: r.Timestamp}, ctx)
		set.Densities[i] = float64(ctx.LocalDensity(r.Latitude, r.Longitude, schema.RadiusMeters))
	}

	set.DensityThreshold = stats.Percentile(set.Densities, LabelPercentile)
	for i, d := range set.Densities {
		set.Labels[i] = d > set.DensityThreshold
	}
	return set, nil
}

// Positives counts High Risk labels.
func (s *TrainingSet) Positives() int {
	n := 0
	for _, l := range s.Labels {
		if l {
			n++
		}
	}
	return n
}

func requireHistorical(records []models.IncidentRecord) error {
	for _, r := range records {
		if r.IsLive() {
			return &models.ValidationError{Field: "Provenance", Reason: fmt.Sprintf("record %s is live; models train on historical records only", r.ID)}
		}
	}
	return nil
}
