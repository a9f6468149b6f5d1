package models

import "time"

// Risk levels.
const (
	RiskHigh = "High Risk"
	RiskLow  = "Low Risk"
)

// RiskPrediction is produced per request and never persisted.
type RiskPrediction struct {
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	Timestamp           time.Time `json:"timestamp"`
	RiskScore           float64   `json:"risk_score"` // 0-1
	RiskLevel           string    `json:"risk_level"`
	ContributingFactors []string  `json:"contributing_factors"`
	DynamicIndex        float64   `json:"dynamic_index"`
}

// PredictRequest is the predict_risk input.
type PredictRequest struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
	Timestamp string  `json:"timestamp"` // ISO-8601
	Date      string  `json:"date"`      // Accepted alias of timestamp
}

// AnomalyFlag marks a record with its isolation score. Lower scores are more anomalous;
// scores below zero fall beyond the contamination threshold.
type AnomalyFlag struct {
	RecordID     string     `json:"record_id"`
	AnomalyScore float64    `json:"anomaly_score"`
	IsAnomalous  bool       `json:"is_anomalous"`
	Timestamp    time.Time  `json:"timestamp"`
	Provenance   Provenance `json:"provenance"`
}

// RiskCell is one cell of the dynamic risk index.
type RiskCell struct {
	CellID    string    `json:"cell_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Static    float64   `json:"static"`
	Live      float64   `json:"live"`
	Index     float64   `json:"index"`
	Zone      string    `json:"zone,omitempty"` // HOT, WARM, COLD
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// IngestStatus is the outcome of ingest_live_event.
type IngestStatus string

const (
	IngestAccepted  IngestStatus = "accepted"
	IngestDuplicate IngestStatus = "duplicate"
	IngestRejected  IngestStatus = "rejected"
)

// IngestResult reports an ingest outcome.
type IngestResult struct {
	ID      string       `json:"id"`
	Status  IngestStatus `json:"status"`
	Reason  string       `json:"reason,omitempty"`
	Anomaly *AnomalyFlag `json:"anomaly,omitempty"`
}
