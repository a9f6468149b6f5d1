package ml

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/goccy/go-json"

	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/stats"
)

// KindIsolationForest is the isolation-based anomaly scorer.
const KindIsolationForest = "isolation_forest"

// ForestConfig configures isolation forest training.
type ForestConfig struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

// DefaultForestConfig mirrors the usual isolation forest defaults.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 100, SampleSize: 256, Contamination: 0.05, Seed: 42}
}

// iNode is a flattened tree node. Leaves have Left == -1.
type iNode struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int     `json:"l"`
	Right   int     `json:"r"`
	Size    int     `json:"n"`
}

type forestParams struct {
	Trees         [][]iNode `json:"trees"`
	SampleSize    int       `json:"sample_size"`
	Contamination float64   `json:"contamination"`
	Offset        float64   `json:"offset"`
}

// IsolationForest scores AnomalyScore = -s(x) - offset, where s(x) = 2^(-E[h(x)]/c(psi))
// is the isolation score. Shorter average paths mean higher s(x), so lower scores are more
// anomalous, and scores below zero fall beyond the contamination quantile of training.
type IsolationForest struct {
	schema features.Schema
	p      forestParams
	cNorm  float64
}

func (f *IsolationForest) Kind() string { return KindIsolationForest }
func (f *IsolationForest) Schema() features.Schema { return f.schema }
func (f *IsolationForest) params() interface{} { return f.p }

// Offset is the contamination-derived shift stored at training time.
func (f *IsolationForest) Offset() float64 { return f.p.Offset }

// IsAnomalous implements Scorer.
func (f *IsolationForest) IsAnomalous(score float64) bool {
	return score < 0
}

// Score implements Scorer.
func (f *IsolationForest) Score(v features.Vector) (float64, error) {
	if err := f.schema.CheckDimension(v); err != nil {
		return 0, err
	}
	return f.raw(v) - f.p.Offset, nil
}

// raw returns -s(x).
func (f *IsolationForest) raw(v features.Vector) float64 {
	total := 0.0
	for _, tree := range f.p.Trees {
		total += pathLength(tree, v)
	}
	mean := total / float64(len(f.p.Trees))
	return -math.Pow(2, -mean/f.cNorm)
}

func pathLength(tree []iNode, v features.Vector) float64 {
	depth := 0.0
	i := 0
	for tree[i].Left >= 0 {
		if v[tree[i].Feature] < tree[i].Split {
			i = tree[i].Left
		} else {
			i = tree[i].Right
		}
		depth++
	}
	return depth + averagePath(tree[i].Size)
}

// averagePath is c(n), the mean unsuccessful search length of a binary search tree.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}

// TrainIsolationForest fits the scorer on historical records. Live records are refused.
func TrainIsolationForest(records []models.IncidentRecord, schema features.Schema, cfg ForestConfig) (*IsolationForest, error) {
	if len(records) == 0 {
		return nil, models.NewValidationError("records", "no historical records to train on")
	}
	if err := requireHistorical(records); err != nil {
		return nil, err
	}
	def := DefaultForestConfig()
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 0.5 {
		cfg.Contamination = def.Contamination
	}

	b := features.NewBuilder(schema)
	ctx := features.NewContext(records, b.Schema().RadiusMeters)
	data := make([]features.Vector, len(records))
	for i, r := range records {
		data[i] = b.BuildRecord(r, ctx)
	}
	return fitForest(data, b.Schema(), cfg), nil
}

func fitForest(data []features.Vector, schema features.Schema, cfg ForestConfig) *IsolationForest {
	psi := cfg.SampleSize
	if psi > len(data) {
		psi = len(data)
	}
	limit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))
	rng := rand.New(rand.NewSource(cfg.Seed))

	f := &IsolationForest{
		schema: schema,
		p: forestParams{
			Trees:         make([][]iNode, cfg.Trees),
			SampleSize:    psi,
			Contamination: cfg.Contamination,
		},
		cNorm: normFor(psi),
	}

	for t := range f.p.Trees {
		perm := rng.Perm(len(data))[:psi]
		sample := make([]features.Vector, psi)
		for i, idx := range perm {
			sample[i] = data[idx]
		}
		g := &grower{rng: rng, limit: limit}
		g.grow(sample, 0)
		f.p.Trees[t] = g.nodes
	}

	raw := make([]float64, len(data))
	for i, v := range data {
		raw[i] = f.raw(v)
	}
	f.p.Offset = stats.Percentile(raw, cfg.Contamination*100)
	return f
}

func normFor(psi int) float64 {
	c := averagePath(psi)
	if c <= 0 {
		return 1
	}
	return c
}

type grower struct {
	rng   *rand.Rand
	limit int
	nodes []iNode
}

func (g *grower) grow(data []features.Vector, depth int) int {
	idx := len(g.nodes)
	g.nodes = append(g.nodes, iNode{Left: -1, Right: -1, Size: len(data)})
	if depth >= g.limit || len(data) <= 1 {
		return idx
	}

	// Pick uniformly among features that still vary in this partition.
	dim := len(data[0])
	var candidates []int
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	for j := 0; j < dim; j++ {
		lo[j], hi[j] = data[0][j], data[0][j]
		for _, v := range data[1:] {
			lo[j] = math.Min(lo[j], v[j])
			hi[j] = math.Max(hi[j], v[j])
		}
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return idx
	}
	feature := candidates[g.rng.Intn(len(candidates))]
	split := lo[feature] + g.rng.Float64()*(hi[feature]-lo[feature])
	if split <= lo[feature] {
		split = math.Nextafter(lo[feature], hi[feature])
	}

	var left, right []features.Vector
	for _, v := range data {
		if v[feature] < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[idx].Feature = feature
	g.nodes[idx].Split = split
	g.nodes[idx].Left = l
	g.nodes[idx].Right = r
	return idx
}

func decodeForest(schema features.Schema, raw []byte) (*IsolationForest, error) {
	var p forestParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode isolation forest params: %w", err)
	}
	if len(p.Trees) == 0 {
		return nil, fmt.Errorf("isolation forest has no trees")
	}
	dim := schema.Dimension()
	for t, tree := range p.Trees {
		if len(tree) == 0 {
			return nil, fmt.Errorf("tree %d is empty", t)
		}
		for i, n := range tree {
			if n.Left < 0 {
				continue
			}
			if n.Left <= i || n.Right <= i || n.Left >= len(tree) || n.Right >= len(tree) || n.Feature < 0 || n.Feature >= dim {
				return nil, fmt.Errorf("tree %d has an invalid node", t)
			}
		}
	}
	return &IsolationForest{schema: schema, p: p, cNorm: normFor(p.SampleSize)}, nil
}
