package stats

import (
	"math"
	"sort"
)

// Percentile calculates the p-th percentile (0-100) using linear interpolation
// between closest ranks. The input is not modified.
func Percentile(values []float64, p float64) float64 {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return Quantile(values, p/100.0)
}

// Quantile calculates the q-th quantile (0 <= q <= 1)
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// ECDF is an empirical cumulative distribution over a fixed sample.
type ECDF struct {
	sorted []float64
}

// NewECDF copies and sorts the sample.
func NewECDF(values []float64) ECDF {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return ECDF{sorted: sorted}
}

// ECDFFromSorted wraps an already sorted sample without copying.
func ECDFFromSorted(sorted []float64) ECDF {
	return ECDF{sorted: sorted}
}

// At returns the fraction of the sample less than or equal to x. It is
// non-decreasing in x and 0 for an empty sample.
func (e ECDF) At(x float64) float64 {
	if len(e.sorted) == 0 {
		return 0
	}
	n := sort.Search(len(e.sorted), func(i int) bool { return e.sorted[i] > x })
	return float64(n) / float64(len(e.sorted))
}

// Sample returns the sorted sample.
func (e ECDF) Sample() []float64 {
	return e.sorted
}

// Quantile returns the q-th quantile of the sample.
func (e ECDF) Quantile(q float64) float64 {
	if len(e.sorted) == 0 {
		return 0
	}
	return quantileSorted(e.sorted, q)
}
