package dataset

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// City is a generator centre.
type City struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Cities are the centres synthetic records are drawn around.
var Cities = []City{
	{"Mumbai", 19.0760, 72.8777},
	{"Delhi", 28.7041, 77.1025},
	{"Bangalore", 12.9716, 77.5946},
	{"Hyderabad", 17.3850, 78.4867},
	{"Chennai", 13.0827, 80.2707},
	{"Kolkata", 22.5726, 88.3639},
}

// CrimeTypes lists synthetic crime types with their sampling weights.
var CrimeTypes = []struct {
	Name   string
	Weight float64
}{
	{"Theft", 0.4},
	{"Assault", 0.2},
	{"Burglary", 0.15},
	{"Vandalism", 0.1},
	{"Fraud", 0.1},
	{"Harassment", 0.05},
}

// coordNoise is the standard deviation of the per-record offset in degrees.
const coordNoise = 0.05

var (
	yearStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	yearDays  = 364
)

// PickCrimeType draws a type by weight using u in [0,1).
func PickCrimeType(u float64) string {
	acc := 0.0
	for _, ct := range CrimeTypes {
		acc += ct.Weight
		if u < acc {
			return ct.Name
		}
	}
	return CrimeTypes[len(CrimeTypes)-1].Name
}

// Synthetic generates n historical records over 2023. The same seed always yields
// the same records.
func Synthetic(n int, seed int64) []models.IncidentRecord {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.IncidentRecord, 0, n)
	for i := 0; i < n; i++ {
		city := Cities[rng.Intn(len(Cities))]
		lat := city.Latitude + rng.NormFloat64()*coordNoise
		lon := city.Longitude + rng.NormFloat64()*coordNoise
		day := rng.Intn(yearDays)
		hour := rng.Intn(24)

		out = append(out, models.IncidentRecord{
			ID:         fmt.Sprintf("syn-%06d", i),
			Latitude:   lat,
			Longitude:  lon,
			Timestamp:  yearStart.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour),
			CrimeType:  PickCrimeType(rng.Float64()),
			Severity:   1 + rng.Intn(models.MaxSeverity),
			City:       city.Name,
			Provenance: models.ProvenanceHistorical,
		})
	}
	return out
}
