package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

var base = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, prov models.Provenance, offset time.Duration) models.IncidentRecord {
	return models.IncidentRecord{
		ID:         id,
		Latitude:   28.70,
		Longitude:  77.10,
		Timestamp:  base.Add(offset),
		CrimeType:  "Theft",
		Severity:   2,
		Provenance: prov,
	}
}

func TestNewRejectsInvalidHistorical(t *testing.T) {
	bad := rec("h2", models.ProvenanceHistorical, 0)
	bad.Latitude = 120
	_, err := New([]models.IncidentRecord{rec("h1", models.ProvenanceHistorical, 0), bad}, Options{})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestAppendValidation(t *testing.T) {
	s, err := New([]models.IncidentRecord{rec("h1", models.ProvenanceHistorical, 0)}, Options{})
	require.NoError(t, err)

	_, err = s.Append(rec("h1", models.ProvenanceLive, time.Minute))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDuplicateRecord))

	_, err = s.Append(rec("l1", models.ProvenanceHistorical, time.Minute))
	assert.True(t, models.IsValidation(err))

	bad := rec("l2", models.ProvenanceLive, time.Minute)
	bad.Severity = 0
	_, err = s.Append(bad)
	assert.True(t, models.IsValidation(err))

	h, l := s.Counts()
	assert.Equal(t, 1, h)
	assert.Equal(t, 0, l, "rejected records must not enter the store")
}

func TestSnapshotOrderAndIsolation(t *testing.T) {
	s, err := New([]models.IncidentRecord{rec("h1", models.ProvenanceHistorical, 0)}, Options{})
	require.NoError(t, err)
	_, err = s.Append(rec("l1", models.ProvenanceLive, time.Minute))
	require.NoError(t, err)

	snap := s.Snapshot()
	_, err = s.Append(rec("l2", models.ProvenanceLive, 2*time.Minute))
	require.NoError(t, err)

	require.Len(t, snap, 2)
	assert.Equal(t, "h1", snap[0].ID)
	assert.Equal(t, "l1", snap[1].ID)
	assert.Len(t, s.Snapshot(), 3)
	assert.Equal(t, 3, s.Len())
}

func TestLiveRingEvictsOldest(t *testing.T) {
	s, err := New(nil, Options{LiveCapacity: 3})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		evicted, err := s.Append(rec(fmt.Sprintf("l%d", i), models.ProvenanceLive, time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, evicted)
	}
	evicted, err := s.Append(rec("l3", models.ProvenanceLive, 3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"l0"}, evicted)
	assert.False(t, s.Has("l0"))

	live := s.Live()
	require.Len(t, live, 3)
	assert.Equal(t, "l1", live[0].ID)
	assert.Equal(t, "l3", live[2].ID)
}

func TestPruneLive(t *testing.T) {
	s, err := New([]models.IncidentRecord{rec("h1", models.ProvenanceHistorical, -48*time.Hour)}, Options{})
	require.NoError(t, err)
	for i, off := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		_, err := s.Append(rec(fmt.Sprintf("l%d", i), models.ProvenanceLive, off))
		require.NoError(t, err)
	}

	pruned := s.PruneLive(base.Add(90 * time.Minute))
	assert.Equal(t, []string{"l0", "l1"}, pruned)
	assert.True(t, s.Has("h1"), "historical records are never pruned")

	h, l := s.Counts()
	assert.Equal(t, 1, h)
	assert.Equal(t, 1, l)
	assert.Nil(t, s.PruneLive(base))
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	s, err := New(nil, Options{LiveCapacity: 1000})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = s.Append(rec(fmt.Sprintf("l%d", i), models.ProvenanceLive, time.Duration(i)*time.Second))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for _, r := range s.Snapshot() {
				if r.ID == "" || r.Provenance != models.ProvenanceLive {
					t.Errorf("torn record observed: %+v", r)
					return
				}
			}
		}
	}()
	wg.Wait()
	assert.Len(t, s.Snapshot(), 200)
}
