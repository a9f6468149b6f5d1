package ml

import (
	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// Flagger scores whole incident records against a fixed density context, the way the
// scorer saw them at training time.
type Flagger struct {
	scorer  Scorer
	builder *features.Builder
	ctx     *features.Context
}

// NewFlagger builds a flagger over the historical records.
func NewFlagger(s Scorer, historical []models.IncidentRecord) *Flagger {
	b := features.NewBuilder(s.Schema())
	return &Flagger{
		scorer:  s,
		builder: b,
		ctx:     features.NewContext(historical, b.Schema().RadiusMeters),
	}
}

// Flag scores one record.
func (f *Flagger) Flag(rec models.IncidentRecord) (models.AnomalyFlag, error) {
	score, err := f.scorer.Score(f.builder.BuildRecord(rec, f.ctx))
	if err != nil {
		return models.AnomalyFlag{}, err
	}
	return models.AnomalyFlag{
		RecordID:     rec.ID,
		AnomalyScore: score,
		IsAnomalous:  f.scorer.IsAnomalous(score),
		Timestamp:    rec.Timestamp,
		Provenance:   rec.Provenance,
	}, nil
}
