package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/live"
	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/metrics"
	"github.com/jengzang/crime-risk-backend-go/internal/ml"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// Contributing factor labels attached to predictions.
const (
	FactorLateNight   = "Late night hours (22:00-04:00)"
	FactorEvening     = "Evening hours (18:00-22:00)"
	FactorHighDensity = "High historical incident density"
)

// DefaultLiveSeverity is assigned to live events that arrive without a severity.
const DefaultLiveSeverity = 3

// EngineService exposes the core operations: predict, hotspots, ingest and anomalies.
type EngineService struct {
	models    *ml.Models
	builder   *features.Builder
	history   *features.Context
	coord     *live.Coordinator
	clusterer live.Clusterer
	now       func() time.Time
	log       zerolog.Logger

	// Concurrent identical on-demand hotspot queries share one clustering run
	onDemand singleflight.Group
}

// NewEngineService wires the service. models may be nil, in which case model-backed
// operations fail with ModelUnavailableError.
func NewEngineService(m *ml.Models, coord *live.Coordinator, clusterer live.Clusterer) *EngineService {
	s := &EngineService{
		models:    m,
		coord:     coord,
		clusterer: clusterer,
		now:       time.Now,
		log:       logging.WithComponent("service"),
	}
	if m != nil && m.Classifier != nil {
		s.builder = features.NewBuilder(m.Classifier.Schema())
		s.history = features.NewContext(coord.Store().Historical(), s.builder.Schema().RadiusMeters)
	}
	return s
}

// SetClock replaces time.Now.
func (s *EngineService) SetClock(now func() time.Time) {
	s.now = now
}

// Coordinator returns the live coordinator behind the service.
func (s *EngineService) Coordinator() *live.Coordinator {
	return s.coord
}

func (s *EngineService) classifier() (ml.Classifier, error) {
	if s.models == nil || s.models.Classifier == nil {
		return nil, &models.ModelUnavailableError{Model: "classifier", Err: errors.New("not loaded")}
	}
	return s.models.Classifier, nil
}

func (s *EngineService) scorer() error {
	if s.models == nil || s.models.Scorer == nil {
		return &models.ModelUnavailableError{Model: "anomaly", Err: errors.New("not loaded")}
	}
	return nil
}

// PredictRisk scores a location and time. An empty timestamp means now.
func (s *EngineService) PredictRisk(ctx context.Context, req models.PredictRequest) (*models.RiskPrediction, error) {
	if err := checkCoordinates(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}
	ts := s.now().UTC()
	raw := req.Timestamp
	if raw == "" {
		raw = req.Date
	}
	if raw != "" {
		t, err := ParseTime("timestamp", raw)
		if err != nil {
			return nil, err
		}
		ts = t
	}

	clf, err := s.classifier()
	if err != nil {
		return nil, err
	}

	q := features.Query{Latitude: req.Latitude, Longitude: req.Longitude, Time: ts}
	score, err := clf.Predict(s.builder.Build(q, s.history))
	if err != nil {
		s.log.Error().Err(err).Str("model", clf.Kind()).Msg("prediction failed")
		return nil, err
	}

	level := models.RiskLow
	if score >= clf.Threshold() {
		level = models.RiskHigh
	}
	metrics.PredictionsTotal.WithLabelValues(level).Inc()

	density := s.history.LocalDensity(req.Latitude, req.Longitude, s.builder.Schema().RadiusMeters)
	return &models.RiskPrediction{
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		Timestamp:           ts,
		RiskScore:           score,
		RiskLevel:           level,
		ContributingFactors: contributingFactors(ts, density, clf.DensityThreshold()),
		DynamicIndex:        s.coord.Index().Value(req.Latitude, req.Longitude, s.now()),
	}, nil
}

func contributingFactors(ts time.Time, density int, densityThreshold float64) []string {
	factors := []string{}
	hour := ts.UTC().Hour()
	switch {
	case features.IsNight(hour):
		factors = append(factors, FactorLateNight)
	case features.IsEvening(hour):
		factors = append(factors, FactorEvening)
	}
	if float64(density) > densityThreshold {
		factors = append(factors, FactorHighDensity)
	}
	return factors
}

func checkCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return models.NewValidationError("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return models.NewValidationError("longitude", "must be between -180 and 180")
	}
	return nil
}

// GetHotspots returns the published cluster set, or clusters the filtered snapshot on
// demand when any filter is given.
func (s *EngineService) GetHotspots(ctx context.Context, filter models.HotspotFilter) (*models.HotspotResponse, error) {
	rf, err := parseRange(filter.CrimeType, filter.StartDate, filter.EndDate)
	if err != nil {
		return nil, err
	}
	if filter.AsOf != "" {
		asOf, err := ParseTime("as_of", filter.AsOf)
		if err != nil {
			return nil, err
		}
		if rf.End.IsZero() || asOf.Before(rf.End) {
			rf.End = asOf
		}
	}

	set, warn := s.coord.Hotspots()
	if rf.IsZero() {
		return &models.HotspotResponse{
			Clusters: set.Clusters,
			Version:  set.Version,
			Stale:    warn != nil,
		}, nil
	}

	key := fmt.Sprintf("%s|%d|%d|%d", rf.CrimeType, rf.Start.UnixNano(), rf.End.UnixNano(), set.Version)
	// The run is shared between callers with the same key, so it must outlive any one of them.
	shared := context.WithoutCancel(ctx)
	ch := s.onDemand.DoChan(key, func() (interface{}, error) {
		records := rf.Apply(s.coord.Store().Snapshot())
		return s.clusterer.Cluster(shared, records, s.coord.Config().Cluster)
	})
	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return nil, fmt.Errorf("failed to cluster filtered records: %w", r.Err)
	}
	return &models.HotspotResponse{
		Clusters: r.Val.([]models.Cluster),
		Version:  set.Version,
		Stale:    warn != nil,
		OnDemand: true,
	}, nil
}

// IngestLiveEvent converts and merges one live event.
func (s *EngineService) IngestLiveEvent(ctx context.Context, ev models.LiveEvent) (models.IngestResult, error) {
	rec, err := RecordFromEvent(ev)
	if err != nil {
		res := models.IngestResult{ID: ev.ID, Status: models.IngestRejected, Reason: err.Error()}
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			res.Reason = ve.Reason
		}
		metrics.IngestTotal.WithLabelValues(string(models.IngestRejected)).Inc()
		return res, err
	}
	return s.coord.Ingest(ctx, rec)
}

// RecordFromEvent converts an ingest payload into a live incident record. A missing id
// is generated and a missing severity takes DefaultLiveSeverity.
func RecordFromEvent(ev models.LiveEvent) (models.IncidentRecord, error) {
	ts, err := ParseTime("timestamp", ev.Timestamp)
	if err != nil {
		return models.IncidentRecord{}, err
	}
	id := strings.TrimSpace(ev.ID)
	if id == "" {
		id = uuid.NewString()
	}
	sev := ev.Severity
	if sev == 0 {
		sev = DefaultLiveSeverity
	}
	return models.IncidentRecord{
		ID:         id,
		Latitude:   ev.Latitude,
		Longitude:  ev.Longitude,
		Timestamp:  ts,
		CrimeType:  strings.TrimSpace(ev.CrimeType),
		Severity:   sev,
		City:       ev.City,
		Provenance: models.ProvenanceLive,
	}, nil
}

// GetAnomalies returns anomaly flags in a time window, most anomalous first. The window
// is either a duration back from now or explicit start/end bounds.
func (s *EngineService) GetAnomalies(ctx context.Context, filter models.AnomalyFilter) ([]models.AnomalyFlag, error) {
	if err := s.scorer(); err != nil {
		return nil, err
	}
	w, err := s.anomalyWindow(filter)
	if err != nil {
		return nil, err
	}
	flags := s.coord.Anomalies(w, filter.OnlyAnomalous)
	if filter.Limit > 0 && len(flags) > filter.Limit {
		flags = flags[:filter.Limit]
	}
	return flags, nil
}

func (s *EngineService) anomalyWindow(filter models.AnomalyFilter) (models.AnomalyWindow, error) {
	if filter.Window != "" {
		d, err := time.ParseDuration(filter.Window)
		if err != nil || d <= 0 {
			return models.AnomalyWindow{}, models.NewValidationError("window", "must be a positive duration such as 24h")
		}
		now := s.now().UTC()
		return models.AnomalyWindow{Start: now.Add(-d), End: now}, nil
	}
	rf, err := parseRange("", filter.Start, filter.End)
	if err != nil {
		return models.AnomalyWindow{}, err
	}
	return models.AnomalyWindow{Start: rf.Start, End: rf.End}, nil
}

// RiskIndex returns the n highest cells of the dynamic risk index.
func (s *EngineService) RiskIndex(ctx context.Context, n int) []models.RiskCell {
	return s.coord.Index().Top(n, s.now())
}

// LiveFeed returns up to limit live records, newest first.
func (s *EngineService) LiveFeed(ctx context.Context, limit int) []models.IncidentRecord {
	recs := s.coord.Store().Live()
	out := make([]models.IncidentRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, recs[i])
	}
	return out
}

// Health summarizes engine state for the health endpoint.
type Health struct {
	Status          string `json:"status"`
	ClassifierKind  string `json:"classifier_kind,omitempty"`
	ScorerKind      string `json:"scorer_kind,omitempty"`
	ClusterVersion  uint64 `json:"cluster_version"`
	State           string `json:"state"`
	HistoricalCount int    `json:"historical_records"`
	LiveCount       int    `json:"live_records"`
	RiskCells       int    `json:"risk_cells"`
}

// Health reports model availability and record counts.
func (s *EngineService) Health(ctx context.Context) Health {
	hist, live := s.coord.Store().Counts()
	h := Health{
		Status:          "ok",
		ClusterVersion:  s.coord.Version(),
		State:           s.coord.State().String(),
		HistoricalCount: hist,
		LiveCount:       live,
		RiskCells:       s.coord.Index().Len(),
	}
	if s.models == nil || s.models.Classifier == nil || s.models.Scorer == nil {
		h.Status = "degraded"
	}
	if s.models != nil {
		if s.models.Classifier != nil {
			h.ClassifierKind = s.models.Classifier.Kind()
		}
		if s.models.Scorer != nil {
			h.ScorerKind = s.models.Scorer.Kind()
		}
	}
	return h
}
