package ml

import (
	"fmt"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

var trainStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func incident(id string, lat, lon float64, hour int, crimeType string, severity int) models.IncidentRecord {
	return models.IncidentRecord{
		ID:         id,
		Latitude:   lat,
		Longitude:  lon,
		Timestamp:  trainStart.Add(time.Duration(hour) * time.Hour),
		CrimeType:  crimeType,
		Severity:   severity,
		Provenance: models.ProvenanceHistorical,
	}
}

// tieredHistory has one dense hotspot of 20 records (local density 20), four medium
// spots of 10 records each (density 10) and 40 isolated records (density 1). With a 500 m
// radius the 75th percentile density is 10, so exactly the hotspot is labelled High Risk.
func tieredHistory() []models.IncidentRecord {
	var out []models.IncidentRecord
	types := []string{"Theft", "Assault", "Burglary", "Fraud"}
	for i := 0; i < 20; i++ {
		out = append(out, incident(fmt.Sprintf("a%02d", i), 28.7000+float64(i)*0.00005, 77.1000, 20+i%5, types[i%2], 3))
	}
	for s := 0; s < 4; s++ {
		for i := 0; i < 10; i++ {
			out = append(out, incident(fmt.Sprintf("b%d%02d", s, i), 28.75+float64(s)*0.05+float64(i)*0.00005, 77.2000, 8+i, types[i%4], 2))
		}
	}
	for i := 0; i < 40; i++ {
		out = append(out, incident(fmt.Sprintf("c%02d", i), 12.0+float64(i)*0.1, 75.0, i%24, types[i%4], 1+i%5))
	}
	return out
}

func testSchema(records []models.IncidentRecord) features.Schema {
	return features.NewSchema(records, 500, 2, 0.01)
}
