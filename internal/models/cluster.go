package models

import "time"

// Cluster summarizes one spatio-temporal hotspot produced by a single clustering run.
type Cluster struct {
	ID           int       `json:"id"`
	Latitude     float64   `json:"latitude"`  // Centroid, arithmetic mean
	Longitude    float64   `json:"longitude"` // Centroid, arithmetic mean
	Count        int       `json:"count"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	CrimeTypes   []string  `json:"crime_types,omitempty"` // Most frequent first
	MeanSeverity float64   `json:"mean_severity"`
	MemberIDs    []string  `json:"member_ids,omitempty"`
}

// ClusterSet is the complete, immutable output of one recompute.
type ClusterSet struct {
	Version    uint64    `json:"version"`
	RunID      string    `json:"run_id"`
	ComputedAt time.Time `json:"computed_at"`
	Records    int       `json:"records"` // Snapshot size the run clustered
	Clusters   []Cluster `json:"clusters"`
}

// HotspotResponse is the get_hotspots payload.
type HotspotResponse struct {
	Clusters []Cluster `json:"clusters"`
	Version  uint64    `json:"version"`
	Stale    bool      `json:"stale"`
	OnDemand bool      `json:"on_demand,omitempty"`
}
