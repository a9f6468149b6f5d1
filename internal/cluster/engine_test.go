package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/spatial"
)

var t0 = time.Date(2023, 8, 14, 20, 0, 0, 0, time.UTC)

// onEquator places a record meters east of (0, 0), where great-circle distance is
// exactly proportional to longitude.
func onEquator(id string, meters float64, offset time.Duration) models.IncidentRecord {
	return models.IncidentRecord{
		ID:         id,
		Latitude:   0,
		Longitude:  meters / spatial.MetersPerDegreeLat,
		Timestamp:  t0.Add(offset),
		CrimeType:  "Theft",
		Severity:   2,
		Provenance: models.ProvenanceHistorical,
	}
}

func engines(t *testing.T) map[string]*Engine {
	t.Helper()
	out := map[string]*Engine{}
	for _, kind := range []string{IndexNaive, IndexGrid} {
		e, err := NewEngine(kind)
		require.NoError(t, err)
		out[kind] = e
	}
	return out
}

func TestTightGroupFormsSingleCluster(t *testing.T) {
	recs := []models.IncidentRecord{
		{ID: "r1", Latitude: 28.70000, Longitude: 77.10000, Timestamp: t0, CrimeType: "Theft", Severity: 2},
		{ID: "r2", Latitude: 28.70020, Longitude: 77.10010, Timestamp: t0.Add(10 * time.Minute), CrimeType: "Theft", Severity: 3},
		{ID: "r3", Latitude: 28.70010, Longitude: 77.10030, Timestamp: t0.Add(25 * time.Minute), CrimeType: "Assault", Severity: 4},
		{ID: "r4", Latitude: 28.69990, Longitude: 77.09980, Timestamp: t0.Add(40 * time.Minute), CrimeType: "Theft", Severity: 1},
		{ID: "r5", Latitude: 28.70030, Longitude: 77.10020, Timestamp: t0.Add(time.Hour), CrimeType: "Fraud", Severity: 5},
	}
	p := Params{SpatialEpsMeters: 100, TemporalEps: 2 * time.Hour, MinPoints: 3}

	for kind, e := range engines(t) {
		clusters, err := e.Cluster(context.Background(), recs, p)
		require.NoError(t, err, kind)
		require.Len(t, clusters, 1, kind)

		c := clusters[0]
		assert.Equal(t, 5, c.Count)
		assert.InDelta(t, 28.70010, c.Latitude, 1e-9)
		assert.InDelta(t, 77.10008, c.Longitude, 1e-9)
		assert.Equal(t, t0, c.Start)
		assert.Equal(t, t0.Add(time.Hour), c.End)
		assert.Equal(t, []string{"Theft", "Assault", "Fraud"}, c.CrimeTypes)
		assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, c.MemberIDs)
		assert.Equal(t, 3.0, c.MeanSeverity)
	}
}

func TestNeighbourBoundaryIsInclusive(t *testing.T) {
	a := onEquator("a", 0, 0)
	b := onEquator("b", 250, 90*time.Minute)
	exact := Params{
		SpatialEpsMeters: spatial.HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude),
		TemporalEps:      90 * time.Minute,
		MinPoints:        2,
	}
	require.True(t, IsNeighbor(a, b, exact))
	require.True(t, IsNeighbor(b, a, exact))

	for kind, e := range engines(t) {
		clusters, err := e.Cluster(context.Background(), []models.IncidentRecord{a, b}, exact)
		require.NoError(t, err)
		require.Len(t, clusters, 1, kind)
		assert.Equal(t, 2, clusters[0].Count)

		tighter := exact
		tighter.SpatialEpsMeters = math.Nextafter(exact.SpatialEpsMeters, 0)
		clusters, err = e.Cluster(context.Background(), []models.IncidentRecord{a, b}, tighter)
		require.NoError(t, err)
		assert.Empty(t, clusters, kind)

		tighter = exact
		tighter.TemporalEps -= time.Nanosecond
		clusters, err = e.Cluster(context.Background(), []models.IncidentRecord{a, b}, tighter)
		require.NoError(t, err)
		assert.Empty(t, clusters, kind)
	}
}

func TestTimeSeparatesColocatedRecords(t *testing.T) {
	var recs []models.IncidentRecord
	for i := 0; i < 3; i++ {
		recs = append(recs, onEquator(fmt.Sprintf("morning-%d", i), float64(i), time.Duration(i)*time.Minute))
		recs = append(recs, onEquator(fmt.Sprintf("night-%d", i), float64(i), 10*time.Hour+time.Duration(i)*time.Minute))
	}
	recs = append(recs, onEquator("lonely", 5000, 0))

	clusters, err := engines(t)[IndexGrid].Cluster(context.Background(), recs, Params{SpatialEpsMeters: 50, TemporalEps: time.Hour, MinPoints: 3})
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"morning-0", "morning-1", "morning-2"}, clusters[0].MemberIDs)
	assert.Equal(t, []string{"night-0", "night-1", "night-2"}, clusters[1].MemberIDs)
}

// Two dense groups share one border point that is within reach of a core point in each.
// The group seeded first under ascending ids claims it.
func borderFixture(firstPrefix, secondPrefix string) []models.IncidentRecord {
	var recs []models.IncidentRecord
	for i, m := range []float64{0, 3, 6, 20} {
		recs = append(recs, onEquator(fmt.Sprintf("%s%d", firstPrefix, i), m, 0))
	}
	for i, m := range []float64{200, 214, 217, 220} {
		recs = append(recs, onEquator(fmt.Sprintf("%s%d", secondPrefix, i), m, 0))
	}
	return append(recs, onEquator("x", 110, 0))
}

func TestBorderPointGoesToLowestClusterID(t *testing.T) {
	p := Params{SpatialEpsMeters: 95, TemporalEps: time.Minute, MinPoints: 4}

	for kind, e := range engines(t) {
		clusters, err := e.Cluster(context.Background(), borderFixture("a", "b"), p)
		require.NoError(t, err)
		require.Len(t, clusters, 2, kind)
		assert.Equal(t, []string{"a0", "a1", "a2", "a3", "x"}, clusters[0].MemberIDs, kind)
		assert.Equal(t, 4, clusters[1].Count)

		// Seeding order follows ids, not geometry: now the eastern group is seeded first.
		clusters, err = e.Cluster(context.Background(), borderFixture("b", "a"), p)
		require.NoError(t, err)
		require.Len(t, clusters, 2, kind)
		assert.Equal(t, []string{"a0", "a1", "a2", "a3", "x"}, clusters[0].MemberIDs, kind)
		assert.InDelta(t, (200+214+217+220+110)/5.0/spatial.MetersPerDegreeLat, clusters[0].Longitude, 1e-12)
	}
}

func randomRecords(seed int64, n int) []models.IncidentRecord {
	rng := rand.New(rand.NewSource(seed))
	ids := rng.Perm(n)
	recs := make([]models.IncidentRecord, n)
	for i := range recs {
		recs[i] = models.IncidentRecord{
			ID:        fmt.Sprintf("rec-%04d", ids[i]),
			Latitude:  28.6 + rng.Float64()*0.05,
			Longitude: 77.1 + rng.Float64()*0.05,
			Timestamp: t0.Add(time.Duration(rng.Intn(72*60)) * time.Minute),
			CrimeType: []string{"Theft", "Assault", "Fraud"}[rng.Intn(3)],
			Severity:  1 + rng.Intn(5),
		}
	}
	return recs
}

func TestDeterministicAndOrderIndependent(t *testing.T) {
	recs := randomRecords(7, 400)
	p := Params{SpatialEpsMeters: 600, TemporalEps: 6 * time.Hour, MinPoints: 4}
	e := engines(t)[IndexGrid]

	first, err := e.Cluster(context.Background(), recs, p)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := e.Cluster(context.Background(), recs, p)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	shuffled := append([]models.IncidentRecord(nil), recs...)
	rand.New(rand.NewSource(99)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	reordered, err := e.Cluster(context.Background(), shuffled, p)
	require.NoError(t, err)
	assert.Equal(t, first, reordered)
}

func TestGridMatchesNaive(t *testing.T) {
	recs := randomRecords(11, 300)
	// Antimeridian neighbours must be found by both indexes.
	recs = append(recs,
		models.IncidentRecord{ID: "wrap-a", Latitude: 10, Longitude: 179.9999, Timestamp: t0},
		models.IncidentRecord{ID: "wrap-b", Latitude: 10, Longitude: -179.9999, Timestamp: t0},
		models.IncidentRecord{ID: "wrap-c", Latitude: 10.0001, Longitude: 179.9998, Timestamp: t0},
	)
	for _, p := range []Params{
		{SpatialEpsMeters: 300, TemporalEps: 3 * time.Hour, MinPoints: 3},
		{SpatialEpsMeters: 1200, TemporalEps: 12 * time.Hour, MinPoints: 6},
		{SpatialEpsMeters: 50, TemporalEps: time.Hour, MinPoints: 2},
	} {
		all := engines(t)
		naive, err := all[IndexNaive].Cluster(context.Background(), recs, p)
		require.NoError(t, err)
		grid, err := all[IndexGrid].Cluster(context.Background(), recs, p)
		require.NoError(t, err)
		assert.Equal(t, naive, grid, p.String())
	}
}

func TestNoiseExcluded(t *testing.T) {
	recs := []models.IncidentRecord{onEquator("a", 0, 0), onEquator("b", 5000, 0), onEquator("c", 10000, 0)}
	clusters, err := engines(t)[IndexNaive].Cluster(context.Background(), recs, Params{SpatialEpsMeters: 100, TemporalEps: time.Hour, MinPoints: 2})
	require.NoError(t, err)
	assert.Empty(t, clusters)
	assert.NotNil(t, clusters)
}

func TestClusterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engines(t)[IndexGrid].Cluster(ctx, randomRecords(3, 50), Params{SpatialEpsMeters: 100, TemporalEps: time.Hour, MinPoints: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParamsValidate(t *testing.T) {
	e := engines(t)[IndexNaive]
	_, err := e.Cluster(context.Background(), nil, Params{SpatialEpsMeters: 0, TemporalEps: time.Hour, MinPoints: 2})
	assert.True(t, models.IsValidation(err))
	_, err = e.Cluster(context.Background(), nil, Params{SpatialEpsMeters: 10, TemporalEps: time.Hour, MinPoints: 0})
	assert.True(t, models.IsValidation(err))

	_, err = NewEngine("quadtree")
	assert.Error(t, err)
}
