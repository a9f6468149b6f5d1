package stats

import (
	"math"
	"sort"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Sigmoid is the logistic function, evaluated without overflow for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// KeyCount is one entry of a frequency table.
type KeyCount struct {
	Key   string
	Count int
}

// Counter tallies string keys.
type Counter map[string]int

// Add increments key by one.
func (c Counter) Add(key string) {
	c[key]++
}

// Sorted returns all entries ordered by count descending, then key ascending.
func (c Counter) Sorted() []KeyCount {
	out := make([]KeyCount, 0, len(c))
	for k, n := range c {
		out = append(out, KeyCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Top returns the keys of the n most frequent entries.
func (c Counter) Top(n int) []string {
	sorted := c.Sorted()
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	keys := make([]string, len(sorted))
	for i, kc := range sorted {
		keys[i] = kc.Key
	}
	return keys
}

// BestF1Threshold picks the decision threshold that maximizes F1 when predicting
// positive for score >= threshold. Candidates are the distinct scores; ties go to the
// lower threshold. It returns fallback when labels contain no positives.
func BestF1Threshold(scores []float64, labels []bool, fallback float64) float64 {
	type pair struct {
		score float64
		pos   bool
	}
	pairs := make([]pair, len(scores))
	positives := 0
	for i := range scores {
		pairs[i] = pair{scores[i], labels[i]}
		if labels[i] {
			positives++
		}
	}
	if positives == 0 {
		return fallback
	}
	// Descending by score: sweeping the threshold down admits one score group at a time.
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	best, bestF1 := fallback, -1.0
	tp, fp := 0, 0
	for i := 0; i < len(pairs); {
		s := pairs[i].score
		for ; i < len(pairs) && pairs[i].score == s; i++ {
			if pairs[i].pos {
				tp++
			} else {
				fp++
			}
		}
		f1 := 2 * float64(tp) / float64(2*tp+fp+(positives-tp))
		if f1 >= bestF1 {
			best, bestF1 = s, f1
		}
	}
	return best
}
