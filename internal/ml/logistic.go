package ml

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/stats"
)

// KindLogistic is a logistic regression whose density weights are kept non-negative.
const KindLogistic = "logistic"

const (
	defaultEpochs       = 400
	defaultLearningRate = 0.2
	defaultL2           = 1e-3
	maxZ                = 6.0
)

func init() {
	RegisterClassifier(KindLogistic, trainLogistic, decodeLogistic)
}

type logisticParams struct {
	Weights          []float64 `json:"weights"`
	Bias             float64   `json:"bias"`
	Mean             []float64 `json:"mean"`
	Scale            []float64 `json:"scale"`
	Threshold        float64   `json:"threshold"`
	DensityThreshold float64   `json:"density_threshold"`
}

// Logistic scores sigmoid(bias + w·standardize(x)). Standardization divides by a positive
// scale, so non-negative weights on density slots keep the score monotone in density.
type Logistic struct {
	schema features.Schema
	p      logisticParams
}

func (m *Logistic) Kind() string { return KindLogistic }
func (m *Logistic) Schema() features.Schema { return m.schema }
func (m *Logistic) Threshold() float64 { return m.p.Threshold }
func (m *Logistic) DensityThreshold() float64 { return m.p.DensityThreshold }
func (m *Logistic) params() interface{} { return m.p }
func (m *Logistic) Weights() []float64 { return append([]float64(nil), m.p.Weights...) }

// Predict implements Classifier.
func (m *Logistic) Predict(v features.Vector) (float64, error) {
	if err := m.schema.CheckDimension(v); err != nil {
		return 0, err
	}
	return stats.Sigmoid(m.logit(v)), nil
}

func (m *Logistic) logit(v features.Vector) float64 {
	z := m.p.Bias
	for j, x := range v {
		z += m.p.Weights[j] * clampZ((x-m.p.Mean[j])/m.p.Scale[j])
	}
	return z
}

// clampZ bounds a standardized input to ±maxZ. It is non-decreasing, so monotone slots
// stay monotone.
func clampZ(z float64) float64 {
	return math.Max(-maxZ, math.Min(maxZ, z))
}

func trainLogistic(set *TrainingSet, opts TrainOptions) (Classifier, error) {
	if len(set.Vectors) == 0 {
		return nil, fmt.Errorf("empty training set")
	}
	if opts.Epochs <= 0 {
		opts.Epochs = defaultEpochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = defaultLearningRate
	}
	if opts.L2 < 0 {
		opts.L2 = 0
	} else if opts.L2 == 0 {
		opts.L2 = defaultL2
	}

	dim := set.Schema.Dimension()
	n := float64(len(set.Vectors))
	mean, scale := standardization(set.Vectors, dim)

	x := make([][]float64, len(set.Vectors))
	for i, v := range set.Vectors {
		if err := set.Schema.CheckDimension(v); err != nil {
			return nil, err
		}
		row := make([]float64, dim)
		for j := range row {
			row[j] = clampZ((v[j] - mean[j]) / scale[j])
		}
		x[i] = row
	}

	nonNeg := make([]bool, dim)
	for _, j := range set.Schema.DensityIndices() {
		nonNeg[j] = true
	}

	w := make([]float64, dim)
	bias := 0.0
	grad := make([]float64, dim)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0
		for i, row := range x {
			z := bias
			for j, xv := range row {
				z += w[j] * xv
			}
			diff := stats.Sigmoid(z)
			if set.Labels[i] {
				diff -= 1
			}
			for j, xv := range row {
				grad[j] += diff * xv
			}
			gradBias += diff
		}
		for j := range w {
			w[j] -= opts.LearningRate * (grad[j]/n + opts.L2*w[j])
			// Projected step: density weights stay non-negative.
			if nonNeg[j] && w[j] < 0 {
				w[j] = 0
			}
		}
		bias -= opts.LearningRate * gradBias / n
	}

	m := &Logistic{
		schema: set.Schema,
		p: logisticParams{
			Weights:          w,
			Bias:             bias,
			Mean:             mean,
			Scale:            scale,
			DensityThreshold: set.DensityThreshold,
		},
	}

	scores := make([]float64, len(set.Vectors))
	for i, v := range set.Vectors {
		scores[i] = stats.Sigmoid(m.logit(v))
	}
	m.p.Threshold = stats.BestF1Threshold(scores, set.Labels, 0.5)
	return m, nil
}

func standardization(vectors []features.Vector, dim int) (mean, scale []float64) {
	mean = make([]float64, dim)
	scale = make([]float64, dim)
	n := float64(len(vectors))
	for _, v := range vectors {
		for j := 0; j < dim && j < len(v); j++ {
			mean[j] += v[j]
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, v := range vectors {
		for j := 0; j < dim && j < len(v); j++ {
			d := v[j] - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] < 1e-9 {
			scale[j] = 1
		}
	}
	return mean, scale
}

func decodeLogistic(schema features.Schema, raw []byte) (Classifier, error) {
	var p logisticParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode logistic params: %w", err)
	}
	dim := schema.Dimension()
	if len(p.Weights) != dim || len(p.Mean) != dim || len(p.Scale) != dim {
		return nil, fmt.Errorf("logistic params have %d weights, schema needs %d", len(p.Weights), dim)
	}
	for j, s := range p.Scale {
		if s <= 0 {
			return nil, fmt.Errorf("logistic scale %d is not positive", j)
		}
	}
	return &Logistic{schema: schema, p: p}, nil
}
