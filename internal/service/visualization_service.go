package service

import (
	"sort"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/spatial"
)

// MaxGeohashPrecision bounds heatmap aggregation.
const MaxGeohashPrecision = 9

// VisualizationService handles business logic for heatmap data
type VisualizationService struct {
	source RecordSource
}

// NewVisualizationService creates a new visualization service
func NewVisualizationService(source RecordSource) *VisualizationService {
	return &VisualizationService{source: source}
}

// GetHeatmap returns filtered incident points, or geohash cells when a precision is set.
func (s *VisualizationService) GetHeatmap(filter models.HeatmapFilter) (*models.HeatmapResponse, error) {
	if filter.Precision < 0 || filter.Precision > MaxGeohashPrecision {
		return nil, models.NewValidationError("precision", "must be between 0 and 9")
	}
	rf, err := parseRange(filter.CrimeType, filter.StartDate, filter.EndDate)
	if err != nil {
		return nil, err
	}
	records := rf.Apply(s.source.Snapshot())

	if filter.Precision == 0 {
		points := make([]models.HeatmapPoint, len(records))
		for i, r := range records {
			points[i] = models.HeatmapPoint{Latitude: r.Latitude, Longitude: r.Longitude, Severity: r.Severity}
		}
		return &models.HeatmapResponse{Points: points, Count: len(points)}, nil
	}

	cells := aggregateGeohash(records, filter.Precision)
	return &models.HeatmapResponse{Cells: cells, Count: len(records), Precision: filter.Precision}, nil
}

// aggregateGeohash buckets records into geohash cells, densest first.
func aggregateGeohash(records []models.IncidentRecord, precision int) []models.HeatmapCell {
	type acc struct {
		count    int
		severity int
	}
	buckets := make(map[string]*acc)
	for _, r := range records {
		h := spatial.EncodeGeohash(r.Latitude, r.Longitude, precision)
		a := buckets[h]
		if a == nil {
			a = &acc{}
			buckets[h] = a
		}
		a.count++
		a.severity += r.Severity
	}

	maxCount := 0
	for _, a := range buckets {
		if a.count > maxCount {
			maxCount = a.count
		}
	}

	cells := make([]models.HeatmapCell, 0, len(buckets))
	for h, a := range buckets {
		lat, lon := spatial.DecodeGeohash(h)
		cells = append(cells, models.HeatmapCell{
			Geohash:      h,
			Latitude:     lat,
			Longitude:    lon,
			Count:        a.count,
			MeanSeverity: float64(a.severity) / float64(a.count),
			Intensity:    float64(a.count) / float64(maxCount),
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Count != cells[j].Count {
			return cells[i].Count > cells[j].Count
		}
		return cells[i].Geohash < cells[j].Geohash
	})
	return cells
}
