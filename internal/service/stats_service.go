package service

import (
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/stats"
)

// RecordSource is a read-only view of the record store.
type RecordSource interface {
	Snapshot() []models.IncidentRecord
	Counts() (historical, live int)
}

// weekOrder lists weekdays Monday first.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

var categoryOrder = []string{
	models.CategoryViolent, models.CategoryProperty, models.CategoryCyber, models.CategoryOther,
}

// StatsService computes dashboard analytics over the record store
type StatsService struct {
	source RecordSource
}

// NewStatsService creates a new stats service
func NewStatsService(source RecordSource) *StatsService {
	return &StatsService{source: source}
}

// GetAnalytics aggregates hourly, weekday, crime type and category counts over the
// records that pass filter.
func (s *StatsService) GetAnalytics(crimeType, startDate, endDate string) (*models.Analytics, error) {
	rf, err := parseRange(crimeType, startDate, endDate)
	if err != nil {
		return nil, err
	}
	records := rf.Apply(s.source.Snapshot())

	hourly := make([]models.HourlyCount, 24)
	for h := range hourly {
		hourly[h].Hour = h
	}
	daily := make(map[time.Weekday]int, 7)
	types := stats.Counter{}
	categories := make(map[string]int, len(categoryOrder))
	live := 0
	var severity float64

	for _, r := range records {
		ts := r.Timestamp.UTC()
		hourly[ts.Hour()].Count++
		daily[ts.Weekday()]++
		types.Add(r.CrimeType)
		categories[models.CrimeCategory(r.CrimeType)]++
		severity += float64(r.Severity)
		if r.IsLive() {
			live++
		}
	}

	a := &models.Analytics{
		TotalRecords: len(records),
		LiveRecords:  live,
		HourlyTrends: hourly,
		CrimeTypes:   []models.CountEntry{},
		DailyTrends:  make([]models.CountEntry, 0, len(weekOrder)),
		Categories:   make([]models.CountEntry, 0, len(categoryOrder)),
	}
	for _, kc := range types.Sorted() {
		a.CrimeTypes = append(a.CrimeTypes, models.CountEntry{Key: kc.Key, Count: kc.Count})
	}
	for _, d := range weekOrder {
		a.DailyTrends = append(a.DailyTrends, models.CountEntry{Key: d.String(), Count: daily[d]})
	}
	for _, c := range categoryOrder {
		a.Categories = append(a.Categories, models.CountEntry{Key: c, Count: categories[c]})
	}
	if len(records) > 0 {
		a.MeanSeverity = severity / float64(len(records))
	}
	return a, nil
}
