package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	inserted []string
	cutoffs  []time.Time
	fail     bool
}

func (s *fakeStore) InsertBatch(_ context.Context, records []models.IncidentRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, errors.New("disk full")
	}
	for _, r := range records {
		s.inserted = append(s.inserted, r.ID)
	}
	return int64(len(records)), nil
}

func (s *fakeStore) DeleteLiveBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, t)
	return 0, nil
}

func (s *fakeStore) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inserted...)
}

func TestFlushWritesInOrderAndExpires(t *testing.T) {
	st := &fakeStore{}
	w, err := NewBatchWriter(st, Config{BatchSize: 10, FlushInterval: time.Hour})
	require.NoError(t, err)

	w.Write(models.IncidentRecord{ID: "a"})
	w.Write(models.IncidentRecord{ID: "b"})
	cut := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	w.Expire(cut.Add(-time.Hour))
	w.Expire(cut)

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, []string{"a", "b"}, st.ids())
	assert.Equal(t, []time.Time{cut}, st.cutoffs)
	assert.Zero(t, w.Pending())
}

func TestFlushFailureKeepsBuffer(t *testing.T) {
	st := &fakeStore{fail: true}
	w, err := NewBatchWriter(st, Config{BatchSize: 2, FlushInterval: time.Hour, MaxBuffer: 3})
	require.NoError(t, err)

	w.Write(models.IncidentRecord{ID: "a"})
	require.Error(t, w.Flush(context.Background()))
	assert.Equal(t, 1, w.Pending())

	w.Write(models.IncidentRecord{ID: "b"})
	w.Write(models.IncidentRecord{ID: "c"})
	w.Write(models.IncidentRecord{ID: "d"}) // over MaxBuffer
	assert.Equal(t, 3, w.Pending())

	st.mu.Lock()
	st.fail = false
	st.mu.Unlock()
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, st.ids())
}

func TestRunFlushesFullBatchAndOnShutdown(t *testing.T) {
	st := &fakeStore{}
	w, err := NewBatchWriter(st, Config{BatchSize: 2, FlushInterval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Write(models.IncidentRecord{ID: "a"})
	w.Write(models.IncidentRecord{ID: "b"})
	require.Eventually(t, func() bool { return len(st.ids()) == 2 }, time.Second, 5*time.Millisecond)

	w.Write(models.IncidentRecord{ID: "c"})
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"a", "b", "c"}, st.ids())
}

func TestNewBatchWriterValidates(t *testing.T) {
	_, err := NewBatchWriter(nil, DefaultConfig())
	assert.Error(t, err)
	_, err = NewBatchWriter(&fakeStore{}, Config{BatchSize: 0, FlushInterval: time.Second})
	assert.Error(t, err)
}
