package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileInterpolates(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 4.0, Percentile(values, 100))
	assert.InDelta(t, 3.25, Percentile(values, 75), 1e-9)
	assert.Equal(t, []float64{4, 1, 3, 2}, values, "input must not be reordered")
	assert.Zero(t, Percentile(nil, 50))
}

func TestECDFMonotone(t *testing.T) {
	e := NewECDF([]float64{0, 1, 1, 2, 5})
	assert.Equal(t, 0.0, e.At(-1))
	assert.Equal(t, 0.2, e.At(0))
	assert.Equal(t, 0.6, e.At(1))
	assert.Equal(t, 0.8, e.At(4.9))
	assert.Equal(t, 1.0, e.At(100))

	prev := -1.0
	for x := -2.0; x <= 6; x += 0.25 {
		v := e.At(x)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestCounterSortedTiesByKey(t *testing.T) {
	c := Counter{}
	for _, k := range []string{"Theft", "Assault", "Theft", "Fraud", "Assault"} {
		c.Add(k)
	}
	assert.Equal(t, []string{"Assault", "Theft"}, c.Top(2))
	assert.Equal(t, []KeyCount{{"Assault", 2}, {"Theft", 2}, {"Fraud", 1}}, c.Sorted())
}

func TestBestF1Threshold(t *testing.T) {
	scores := []float64{0.9, 0.8, 0.7, 0.2, 0.1}
	labels := []bool{true, true, false, false, false}
	assert.Equal(t, 0.8, BestF1Threshold(scores, labels, 0.5))

	assert.Equal(t, 0.5, BestF1Threshold(scores, make([]bool, 5), 0.5))
}

func TestSigmoid(t *testing.T) {
	assert.Equal(t, 0.5, Sigmoid(0))
	assert.InDelta(t, 1.0, Sigmoid(800), 1e-12)
	assert.InDelta(t, 0.0, Sigmoid(-800), 1e-12)
}
