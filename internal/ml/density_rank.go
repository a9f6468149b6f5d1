package ml

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/stats"
)

// KindDensityRank scores a location by where its local density ranks among the
// training locations.
const KindDensityRank = "density_rank"

func init() {
	RegisterClassifier(KindDensityRank, trainDensityRank, decodeDensityRank)
}

type densityRankParams struct {
	Sample           []float64 `json:"sample"` // Sorted density feature values
	Threshold        float64   `json:"threshold"`
	DensityThreshold float64   `json:"density_threshold"`
}

// DensityRank is the empirical CDF of the density feature. It ignores every other slot.
type DensityRank struct {
	schema features.Schema
	ecdf   stats.ECDF
	p      densityRankParams
}

func (m *DensityRank) Kind() string { return KindDensityRank }
func (m *DensityRank) Schema() features.Schema { return m.schema }
func (m *DensityRank) Threshold() float64 { return m.p.Threshold }
func (m *DensityRank) DensityThreshold() float64 { return m.p.DensityThreshold }
func (m *DensityRank) params() interface{} { return m.p }

// Predict implements Classifier.
func (m *DensityRank) Predict(v features.Vector) (float64, error) {
	if err := m.schema.CheckDimension(v); err != nil {
		return 0, err
	}
	return m.ecdf.At(v[features.IdxDensity]), nil
}

func trainDensityRank(set *TrainingSet, _ TrainOptions) (Classifier, error) {
	if len(set.Vectors) == 0 {
		return nil, fmt.Errorf("empty training set")
	}
	sample := make([]float64, len(set.Vectors))
	for i, v := range set.Vectors {
		if err := set.Schema.CheckDimension(v); err != nil {
			return nil, err
		}
		sample[i] = v[features.IdxDensity]
	}
	ecdf := stats.NewECDF(sample)

	// High Risk needs some training density above the labelling threshold at or below the
	// query's, so the threshold sits just above the CDF at the labelling density.
	at := ecdf.At(math.Log1p(set.DensityThreshold))
	m := &DensityRank{
		schema: set.Schema,
		ecdf:   ecdf,
		p: densityRankParams{
			Sample:           ecdf.Sample(),
			Threshold:        math.Nextafter(at, math.Inf(1)),
			DensityThreshold: set.DensityThreshold,
		},
	}
	return m, nil
}

func decodeDensityRank(schema features.Schema, raw []byte) (Classifier, error) {
	var p densityRankParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode density_rank params: %w", err)
	}
	if len(p.Sample) == 0 {
		return nil, fmt.Errorf("density_rank params have an empty sample")
	}
	for i := 1; i < len(p.Sample); i++ {
		if p.Sample[i] < p.Sample[i-1] {
			return nil, fmt.Errorf("density_rank sample is not sorted")
		}
	}
	return &DensityRank{schema: schema, ecdf: stats.ECDFFromSorted(p.Sample), p: p}, nil
}
