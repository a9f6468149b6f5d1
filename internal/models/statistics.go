package models

// CountEntry is one labelled bucket of an analytics series.
type CountEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// HourlyCount is the incident count for one UTC hour.
type HourlyCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Analytics is the dashboard summary over the record store.
type Analytics struct {
	TotalRecords int           `json:"total_records"`
	LiveRecords  int           `json:"live_records"`
	HourlyTrends []HourlyCount `json:"hourly_trends"` // 0-23
	CrimeTypes   []CountEntry  `json:"crime_types"`   // Most frequent first
	DailyTrends  []CountEntry  `json:"daily_trends"`  // Monday..Sunday
	Categories   []CountEntry  `json:"categories"`
	MeanSeverity float64       `json:"mean_severity"`
}
