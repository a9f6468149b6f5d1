package models

import (
	"strings"
	"time"
)

// Provenance distinguishes batch-loaded records from streamed ones.
type Provenance string

const (
	ProvenanceHistorical Provenance = "historical"
	ProvenanceLive       Provenance = "live"
)

// Severity bounds for incident records.
const (
	MinSeverity = 1
	MaxSeverity = 5
)

// IncidentRecord is a single geotagged incident. Records are never mutated after creation.
type IncidentRecord struct {
	ID         string     `json:"id" validate:"required,max=128"`
	Latitude   float64    `json:"latitude" validate:"min=-90,max=90"`
	Longitude  float64    `json:"longitude" validate:"min=-180,max=180"`
	Timestamp  time.Time  `json:"timestamp" validate:"required"`
	CrimeType  string     `json:"crime_type" validate:"required,max=64"`
	Severity   int        `json:"severity" validate:"min=1,max=5"`
	City       string     `json:"city,omitempty"`
	Provenance Provenance `json:"provenance" validate:"oneof=historical live"`
}

// IsLive reports whether the record came from the live stream.
func (r IncidentRecord) IsLive() bool {
	return r.Provenance == ProvenanceLive
}

// LiveEvent is the ingest payload for a live incident.
type LiveEvent struct {
	ID        string  `json:"id"` // generated when empty
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
	Timestamp string  `json:"timestamp" binding:"required"` // ISO-8601
	CrimeType string  `json:"crime_type" binding:"required"`
	Severity  int     `json:"severity"`
	City      string  `json:"city,omitempty"`
}

// Crime categories used by analytics.
const (
	CategoryViolent  = "violent"
	CategoryProperty = "property"
	CategoryCyber    = "cyber"
	CategoryOther    = "other"
)

var crimeCategories = map[string]string{
	"murder":     CategoryViolent,
	"rape":       CategoryViolent,
	"kidnapping": CategoryViolent,
	"assault":    CategoryViolent,
	"robbery":    CategoryViolent,
	"theft":      CategoryProperty,
	"burglary":   CategoryProperty,
	"dacoity":    CategoryProperty,
	"cheating":   CategoryProperty,
	"cyber":      CategoryCyber,
	"fraud":      CategoryCyber,
}

// CrimeCategory maps a crime type onto a coarse category. Matching is case-insensitive
// and also accepts compound names such as "Cyber Crime".
func CrimeCategory(crimeType string) string {
	t := strings.ToLower(strings.TrimSpace(crimeType))
	if c, ok := crimeCategories[t]; ok {
		return c
	}
	for _, word := range strings.Fields(t) {
		if c, ok := crimeCategories[word]; ok {
			return c
		}
	}
	return CategoryOther
}
