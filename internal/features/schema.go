// Package features turns a location/time query or an incident record into a
// fixed-shape numeric vector for the risk and anomaly models.
package features

import (
	"sort"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// Vector is a feature vector laid out by a Schema.
type Vector []float64

// Fixed slots; the two crime-type blocks follow.
const (
	IdxLatBucket = iota
	IdxLonBucket
	IdxHour
	IdxWeekday
	IdxNight
	IdxDensity
	IdxHourDensity
	IdxSeverity
	fixedSlots
)

// OtherType is the vocabulary slot for crime types unseen at training time.
const OtherType = "other"

// Defaults for NewSchema.
const (
	DefaultRadiusMeters = 1000.0
	DefaultHourBand     = 2
	DefaultBucketDeg    = 0.01
)

// Schema fixes the feature layout. It is stored with every trained model so serving
// builds exactly the vectors the model was fitted on.
type Schema struct {
	Vocabulary   []string `json:"vocabulary"` // Sorted crime types; "other" is implicit
	RadiusMeters float64  `json:"radius_m"`
	HourBand     int      `json:"hour_band"`
	BucketDeg    float64  `json:"bucket_deg"`
}

// NewSchema derives the vocabulary from records. Zero parameters take the defaults.
func NewSchema(records []models.IncidentRecord, radiusMeters float64, hourBand int, bucketDeg float64) Schema {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.CrimeType != "" {
			seen[r.CrimeType] = struct{}{}
		}
	}
	vocab := make([]string, 0, len(seen))
	for t := range seen {
		vocab = append(vocab, t)
	}
	sort.Strings(vocab)

	s := Schema{Vocabulary: vocab, RadiusMeters: radiusMeters, HourBand: hourBand, BucketDeg: bucketDeg}
	return s.withDefaults()
}

func (s Schema) withDefaults() Schema {
	if s.RadiusMeters <= 0 {
		s.RadiusMeters = DefaultRadiusMeters
	}
	if s.HourBand < 0 {
		s.HourBand = DefaultHourBand
	}
	if s.BucketDeg <= 0 {
		s.BucketDeg = DefaultBucketDeg
	}
	return s
}

// TypeSlots is the number of crime-type slots, including "other".
func (s Schema) TypeSlots() int {
	return len(s.Vocabulary) + 1
}

// Dimension is the length of every vector built under this schema.
func (s Schema) Dimension() int {
	return fixedSlots + 2*s.TypeSlots()
}

// TypeIndex returns the slot of crimeType, or the "other" slot when it is unknown.
func (s Schema) TypeIndex(crimeType string) int {
	i := sort.SearchStrings(s.Vocabulary, crimeType)
	if i < len(s.Vocabulary) && s.Vocabulary[i] == crimeType {
		return i
	}
	return len(s.Vocabulary)
}

// OneHotOffset is the first index of the query crime-type block.
func (s Schema) OneHotOffset() int {
	return fixedSlots
}

// FrequencyOffset is the first index of the nearby crime-type count block.
func (s Schema) FrequencyOffset() int {
	return fixedSlots + s.TypeSlots()
}

// DensityIndices lists the slots that only grow as nearby historical records are added.
// Models that promise monotone risk in local density constrain these.
func (s Schema) DensityIndices() []int {
	idx := []int{IdxDensity, IdxHourDensity}
	for i := 0; i < s.TypeSlots(); i++ {
		idx = append(idx, s.FrequencyOffset()+i)
	}
	return idx
}

// CheckDimension returns a FeatureShapeError when v does not fit the schema.
func (s Schema) CheckDimension(v Vector) error {
	if len(v) != s.Dimension() {
		return &models.FeatureShapeError{Want: s.Dimension(), Got: len(v)}
	}
	return nil
}
