package models

import "time"

// RecordFilter is the read-side projection over record store contents.
type RecordFilter struct {
	CrimeType string    // Empty or "All" means no filter
	Start     time.Time // Zero means unbounded
	End       time.Time // Zero means unbounded, inclusive
}

// Match reports whether rec passes the filter.
func (f RecordFilter) Match(rec IncidentRecord) bool {
	if f.CrimeType != "" && f.CrimeType != "All" && rec.CrimeType != f.CrimeType {
		return false
	}
	if !f.Start.IsZero() && rec.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && rec.Timestamp.After(f.End) {
		return false
	}
	return true
}

// IsZero reports whether the filter selects everything.
func (f RecordFilter) IsZero() bool {
	return (f.CrimeType == "" || f.CrimeType == "All") && f.Start.IsZero() && f.End.IsZero()
}

// Apply returns the records that pass the filter.
func (f RecordFilter) Apply(records []IncidentRecord) []IncidentRecord {
	if f.IsZero() {
		return records
	}
	out := make([]IncidentRecord, 0, len(records))
	for _, rec := range records {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// HotspotFilter represents query parameters for GET /api/v1/hotspots
type HotspotFilter struct {
	AsOf      string `form:"as_of"`      // ISO-8601
	CrimeType string `form:"crime_type"` // "All" for every type
	StartDate string `form:"start_date"` // YYYY-MM-DD or ISO-8601
	EndDate   string `form:"end_date"`
}

// HeatmapFilter represents query parameters for GET /api/v1/heatmap-data
type HeatmapFilter struct {
	CrimeType string `form:"crime_type"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Precision int    `form:"precision"` // Geohash precision 1-9, 0 returns raw points
}

// AnomalyFilter represents query parameters for GET /api/v1/anomalies
type AnomalyFilter struct {
	Window        string `form:"window"` // Duration back from now, e.g. "24h"
	Start         string `form:"start"`
	End           string `form:"end"`
	OnlyAnomalous bool   `form:"only_anomalous"`
	Limit         int    `form:"limit"`
}

// AnomalyWindow bounds get_anomalies by record timestamp, both ends inclusive.
type AnomalyWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in the window.
func (w AnomalyWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}
