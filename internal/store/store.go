// Package store holds incident records. Historical records are loaded once; live records
// are appended into a bounded ring and pruned by age. Readers never lock: every write
// publishes a fresh immutable state through an atomic pointer.
package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/validation"
)

// DefaultLiveCapacity is the live ring size used when Options leaves it unset.
const DefaultLiveCapacity = 500

// Options configures a Store.
type Options struct {
	LiveCapacity int
}

type state struct {
	historical []models.IncidentRecord // shared between states, never written after New
	live       []models.IncidentRecord // oldest first, rebuilt on every write
}

// Store is the record store. Writes are serialized; reads are lock-free.
type Store struct {
	mu       sync.Mutex // serializes writers
	ids      map[string]struct{}
	capacity int
	cur      atomic.Pointer[state]
}

// New validates the historical records and builds a store around them. Every record
// must carry historical provenance and a unique id.
func New(historical []models.IncidentRecord, opts Options) (*Store, error) {
	if opts.LiveCapacity <= 0 {
		opts.LiveCapacity = DefaultLiveCapacity
	}
	s := &Store{
		ids:      make(map[string]struct{}, len(historical)),
		capacity: opts.LiveCapacity,
	}

	recs := make([]models.IncidentRecord, 0, len(historical))
	invalid := 0
	var firstErr error
	for _, rec := range historical {
		rec.Timestamp = rec.Timestamp.UTC()
		err := s.check(rec, models.ProvenanceHistorical)
		if err != nil {
			invalid++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.ids[rec.ID] = struct{}{}
		recs = append(recs, rec)
	}
	if invalid > 0 {
		return nil, fmt.Errorf("%d invalid historical records: %w", invalid, firstErr)
	}

	s.cur.Store(&state{historical: recs})
	return s, nil
}

func (s *Store) check(rec models.IncidentRecord, want models.Provenance) error {
	if rec.Provenance != want {
		return models.NewValidationError("Provenance", fmt.Sprintf("must be %s", want))
	}
	if err := validation.Record(rec); err != nil {
		return err
	}
	if _, dup := s.ids[rec.ID]; dup {
		return &models.ValidationError{Field: "ID", Reason: fmt.Sprintf("id %q already exists", rec.ID), Err: models.ErrDuplicateRecord}
	}
	return nil
}

// Append adds a live record. It fails with a ValidationError when the record is malformed
// or its id collides. When the live ring is full the oldest live record is evicted and its
// id returned.
func (s *Store) Append(rec models.IncidentRecord) (evicted []string, err error) {
	rec.Timestamp = rec.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(rec, models.ProvenanceLive); err != nil {
		return nil, err
	}

	old := s.cur.Load()
	drop := len(old.live) + 1 - s.capacity
	if drop < 0 {
		drop = 0
	}
	live := make([]models.IncidentRecord, 0, len(old.live)-drop+1)
	for _, r := range old.live[:drop] {
		delete(s.ids, r.ID)
		evicted = append(evicted, r.ID)
	}
	live = append(live, old.live[drop:]...)
	live = append(live, rec)

	s.ids[rec.ID] = struct{}{}
	s.cur.Store(&state{historical: old.historical, live: live})
	return evicted, nil
}

// PruneLive removes live records whose timestamp is before olderThan and returns their ids.
func (s *Store) PruneLive(olderThan time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cur.Load()
	kept := make([]models.IncidentRecord, 0, len(old.live))
	var pruned []string
	for _, r := range old.live {
		if r.Timestamp.Before(olderThan) {
			pruned = append(pruned, r.ID)
			delete(s.ids, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	if len(pruned) == 0 {
		return nil
	}
	s.cur.Store(&state{historical: old.historical, live: kept})
	return pruned
}

// Has reports whether a record with id is currently stored.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Snapshot returns historical records in load order followed by live records in arrival
// order. The slice is owned by the caller.
func (s *Store) Snapshot() []models.IncidentRecord {
	st := s.cur.Load()
	out := make([]models.IncidentRecord, 0, len(st.historical)+len(st.live))
	out = append(out, st.historical...)
	return append(out, st.live...)
}

// Historical returns the historical records. The backing array is shared and must not be modified.
func (s *Store) Historical() []models.IncidentRecord {
	return s.cur.Load().historical
}

// Live returns a copy of the live records, oldest first.
func (s *Store) Live() []models.IncidentRecord {
	st := s.cur.Load()
	out := make([]models.IncidentRecord, len(st.live))
	copy(out, st.live)
	return out
}

// Counts returns the number of historical and live records.
func (s *Store) Counts() (historical, live int) {
	st := s.cur.Load()
	return len(st.historical), len(st.live)
}

// Len returns the total number of stored records.
func (s *Store) Len() int {
	h, l := s.Counts()
	return h + l
}
