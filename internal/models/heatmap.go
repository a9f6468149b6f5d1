package models

// HeatmapPoint represents a single incident point in the heatmap
type HeatmapPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Severity  int     `json:"severity"`
}

// HeatmapCell aggregates points sharing a geohash cell
type HeatmapCell struct {
	Geohash      string  `json:"geohash"`
	Latitude     float64 `json:"latitude"`  // Cell center
	Longitude    float64 `json:"longitude"` // Cell center
	Count        int     `json:"count"`
	MeanSeverity float64 `json:"mean_severity"`
	Intensity    float64 `json:"intensity"` // Normalized 0-1 against the densest cell
}

// HeatmapResponse represents the heatmap API response
type HeatmapResponse struct {
	Points    []HeatmapPoint `json:"points,omitempty"`
	Cells     []HeatmapCell  `json:"cells,omitempty"`
	Count     int            `json:"count"`
	Precision int            `json:"precision,omitempty"`
}
