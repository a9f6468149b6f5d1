package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/crime-risk-backend-go/internal/cluster"
	"github.com/jengzang/crime-risk-backend-go/internal/config"
	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/handler"
	"github.com/jengzang/crime-risk-backend-go/internal/live"
	"github.com/jengzang/crime-risk-backend-go/internal/middleware"
	"github.com/jengzang/crime-risk-backend-go/internal/ml"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/riskindex"
	"github.com/jengzang/crime-risk-backend-go/internal/service"
	"github.com/jengzang/crime-risk-backend-go/internal/store"
)

const testSecret = "router-secret"

var (
	histStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC) // Monday
	routerNow = time.Date(2023, 1, 3, 12, 0, 0, 0, time.UTC)
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// history has a hotspot of 20 records, four medium spots of 10 and 40 isolated records,
// so at a 500 m radius only the hotspot is above the labelling density.
func history() []models.IncidentRecord {
	var out []models.IncidentRecord
	types := []string{"Theft", "Assault", "Burglary", "Fraud"}
	add := func(id string, lat, lon float64, hour int, typ string) {
		out = append(out, models.IncidentRecord{
			ID: id, Latitude: lat, Longitude: lon,
			Timestamp: histStart.Add(time.Duration(hour) * time.Hour),
			CrimeType: typ, Severity: 3, Provenance: models.ProvenanceHistorical,
		})
	}
	for i := 0; i < 20; i++ {
		add(fmt.Sprintf("a%02d", i), 28.7000+float64(i)*0.00005, 77.1000, 20+i%5, types[i%2])
	}
	for s := 0; s < 4; s++ {
		for i := 0; i < 10; i++ {
			add(fmt.Sprintf("b%d%02d", s, i), 28.75+float64(s)*0.05+float64(i)*0.00005, 77.2000, 8+i, types[i%4])
		}
	}
	for i := 0; i < 40; i++ {
		add(fmt.Sprintf("c%02d", i), 12.0+float64(i)*0.1, 75.0, i%24, types[i%4])
	}
	return out
}

func newRouter(t *testing.T, withModels bool) (*gin.Engine, *live.Coordinator) {
	t.Helper()
	hist := history()
	st, err := store.New(hist, store.Options{})
	require.NoError(t, err)
	eng, err := cluster.NewEngine(cluster.IndexNaive)
	require.NoError(t, err)

	lc := live.DefaultConfig()
	lc.Cluster = cluster.Params{SpatialEpsMeters: 500, TemporalEps: 24 * time.Hour, MinPoints: 5}
	opts := []live.Option{live.WithClock(func() time.Time { return routerNow })}

	var m *ml.Models
	if withModels {
		schema := features.NewSchema(hist, 500, 2, 0.01)
		set, err := ml.NewTrainingSet(hist, schema)
		require.NoError(t, err)
		clf, err := ml.TrainClassifier(ml.KindDensityRank, set, ml.TrainOptions{})
		require.NoError(t, err)
		forest, err := ml.TrainIsolationForest(hist, schema, ml.DefaultForestConfig())
		require.NoError(t, err)
		m = &ml.Models{Classifier: clf, Scorer: forest}
		opts = append(opts, live.WithFlagger(ml.NewFlagger(forest, hist)))
	}

	coord, err := live.New(lc, st, riskindex.New(riskindex.DefaultConfig(), hist), eng, opts...)
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	_, err = coord.Recompute(context.Background())
	require.NoError(t, err)

	engine := service.NewEngineService(m, coord, eng)
	engine.SetClock(func() time.Time { return routerNow })

	cfg := config.Default()
	cfg.Server.JWTSecret = testSecret
	r := SetupRouter(cfg, Services{
		Engine:        engine,
		Stats:         service.NewStatsService(st),
		Visualization: service.NewVisualizationService(st),
	}, middleware.NewRateLimiter(0, 0))
	return r, coord
}

func do(r *gin.Engine, method, path string, body interface{}, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func bearer(t *testing.T) map[string]string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "feed",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + s}
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newRouter(t, true)

	w, _ := do(r, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var h service.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.EqualValues(t, 1, h.ClusterVersion)
	assert.Equal(t, 100, h.HistoricalCount)

	w, _ = do(r, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "crime_engine_cluster_version")
}

func TestPredictEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w, env := do(r, http.MethodPost, "/api/v1/predict", map[string]interface{}{
		"latitude": 28.7, "longitude": 77.1, "timestamp": "2023-01-02T23:00:00Z",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p models.RiskPrediction
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, models.RiskHigh, p.RiskLevel)

	w, _ = do(r, http.MethodPost, "/api/v1/predict", map[string]interface{}{"latitude": 95, "longitude": 77.1}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(r, http.MethodPost, "/api/v1/predict", map[string]interface{}{
		"latitude": 28.7, "longitude": 77.1, "timestamp": "not a time",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "timestamp")
}

func TestPredictWithoutModelsIsUnavailable(t *testing.T) {
	r, _ := newRouter(t, false)

	w, _ := do(r, http.MethodPost, "/api/v1/predict", map[string]interface{}{"latitude": 28.7, "longitude": 77.1}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = do(r, http.MethodGet, "/api/v1/anomalies?window=24h", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHotspotsEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w, env := do(r, http.MethodGet, "/api/v1/hotspots", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(handler.StaleHeader))
	var resp models.HotspotResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Clusters, 5)
	assert.Equal(t, 20, resp.Clusters[0].Count)

	w, env = do(r, http.MethodGet, "/api/v1/hotspots?crime_type=Fraud", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.OnDemand)
	assert.Empty(t, resp.Clusters)

	w, _ = do(r, http.MethodGet, "/api/v1/hotspots?as_of=garbage", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLiveEventsEndpoint(t *testing.T) {
	r, coord := newRouter(t, true)
	ev := map[string]interface{}{
		"id": "live-1", "latitude": 28.7001, "longitude": 77.1001,
		"timestamp": "2023-01-03T11:30:00Z", "crime_type": "Assault", "severity": 4,
	}

	w, _ := do(r, http.MethodPost, "/api/v1/live/events", ev, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := do(r, http.MethodPost, "/api/v1/live/events", ev, bearer(t))
	require.Equal(t, http.StatusAccepted, w.Code)
	var res models.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.IngestAccepted, res.Status)

	w, env = do(r, http.MethodPost, "/api/v1/live/events", ev, bearer(t))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.IngestDuplicate, res.Status)

	stale := map[string]interface{}{
		"id": "live-old", "latitude": 28.7, "longitude": 77.1,
		"timestamp": "2022-12-01T00:00:00Z", "crime_type": "Theft",
	}
	w, env = do(r, http.MethodPost, "/api/v1/live/events", stale, bearer(t))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.IngestRejected, res.Status)

	w, _ = do(r, http.MethodPost, "/api/v1/live/events", map[string]interface{}{"id": "x"}, bearer(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(r, http.MethodGet, "/api/v1/live/events?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var feed []models.IncidentRecord
	require.NoError(t, json.Unmarshal(env.Data, &feed))
	require.Len(t, feed, 1)
	assert.Equal(t, "live-1", feed[0].ID)
	assert.Equal(t, 1, coord.Pending())
}

func TestLiveEventWithoutIDGetsGeneratedID(t *testing.T) {
	r, coord := newRouter(t, false)
	ev := map[string]interface{}{
		"latitude": 28.7001, "longitude": 77.1001,
		"timestamp": "2023-01-03T11:30:00Z", "crime_type": "Assault",
	}

	w, env := do(r, http.MethodPost, "/api/v1/live/events", ev, bearer(t))
	require.Equal(t, http.StatusAccepted, w.Code)
	var res models.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.IngestAccepted, res.Status)
	require.NotEmpty(t, res.ID)
	_, err := uuid.Parse(res.ID)
	assert.NoError(t, err)
	assert.True(t, coord.Store().Has(res.ID))

	w, env = do(r, http.MethodPost, "/api/v1/live/events", ev, bearer(t))
	require.Equal(t, http.StatusAccepted, w.Code)
	var second models.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.NotEqual(t, res.ID, second.ID)
}

func TestAnomaliesEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w, env := do(r, http.MethodGet, "/api/v1/anomalies?window=72h&limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var flags []models.AnomalyFlag
	require.NoError(t, json.Unmarshal(env.Data, &flags))
	assert.Len(t, flags, 5)

	w, _ = do(r, http.MethodGet, "/api/v1/anomalies?window=soon", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHeatmapAndAnalyticsEndpoints(t *testing.T) {
	r, _ := newRouter(t, true)

	w, env := do(r, http.MethodGet, "/api/v1/heatmap-data?crime_type=Theft", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hm models.HeatmapResponse
	require.NoError(t, json.Unmarshal(env.Data, &hm))
	assert.Equal(t, 32, hm.Count)
	assert.Len(t, hm.Points, 32)

	w, env = do(r, http.MethodGet, "/api/v1/heatmap-data?precision=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &hm))
	require.NotEmpty(t, hm.Cells)
	assert.Equal(t, 20, hm.Cells[0].Count)
	assert.Equal(t, 1.0, hm.Cells[0].Intensity)

	w, _ = do(r, http.MethodGet, "/api/v1/heatmap-data?precision=12", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(r, http.MethodGet, "/api/v1/analytics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var a models.Analytics
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, 100, a.TotalRecords)
	require.Len(t, a.DailyTrends, 7)
	assert.Equal(t, "Monday", a.DailyTrends[0].Key)
	assert.Equal(t, "Sunday", a.DailyTrends[6].Key)
	assert.Len(t, a.HourlyTrends, 24)

	w, _ = do(r, http.MethodGet, "/api/v1/analytics?start_date=bad", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRiskIndexEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w, env := do(r, http.MethodGet, "/api/v1/risk-index?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cells []models.RiskCell
	require.NoError(t, json.Unmarshal(env.Data, &cells))
	assert.Len(t, cells, 2)

	w, _ = do(r, http.MethodGet, "/api/v1/risk-index?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
