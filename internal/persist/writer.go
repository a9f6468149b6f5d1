// Package persist batches accepted live records into the incident database.
package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/metrics"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// Store is the persistence backend the writer flushes into.
type Store interface {
	InsertBatch(ctx context.Context, records []models.IncidentRecord) (int64, error)
	DeleteLiveBefore(ctx context.Context, t time.Time) (int64, error)
}

// Config controls batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxBuffer     int // Records beyond this are dropped while the store is failing
}

// DefaultConfig returns the standard batching parameters.
func DefaultConfig() Config {
	return Config{BatchSize: 100, FlushInterval: 2 * time.Second, MaxBuffer: 10000}
}

// BatchWriter buffers records from the live coordinator and writes them in batches.
// Write and Expire never block on the database.
type BatchWriter struct {
	store Store
	cfg   Config

	mu      sync.Mutex
	buffer  []models.IncidentRecord
	expire  time.Time // Latest pending expiry cutoff
	dropped int

	// Serializes flushes so inserts land in arrival order
	flushMu sync.Mutex
	kick    chan struct{}
}

// NewBatchWriter creates a writer over store.
func NewBatchWriter(store Store, cfg Config) (*BatchWriter, error) {
	if store == nil {
		return nil, errors.New("store required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch size must be positive")
	}
	if cfg.FlushInterval <= 0 {
		return nil, errors.New("flush interval must be positive")
	}
	if cfg.MaxBuffer < cfg.BatchSize {
		cfg.MaxBuffer = cfg.BatchSize
	}
	return &BatchWriter{
		store:  store,
		cfg:    cfg,
		buffer: make([]models.IncidentRecord, 0, cfg.BatchSize),
		kick:   make(chan struct{}, 1),
	}, nil
}

// Write queues rec for insertion.
func (w *BatchWriter) Write(rec models.IncidentRecord) {
	w.mu.Lock()
	if len(w.buffer) >= w.cfg.MaxBuffer {
		w.dropped++
		w.mu.Unlock()
		metrics.PersistFlushTotal.WithLabelValues("dropped").Inc()
		return
	}
	w.buffer = append(w.buffer, rec)
	full := len(w.buffer) >= w.cfg.BatchSize
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Expire schedules deletion of persisted live records older than before.
func (w *BatchWriter) Expire(before time.Time) {
	w.mu.Lock()
	if before.After(w.expire) {
		w.expire = before
	}
	w.mu.Unlock()
}

// Pending returns the number of buffered records.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Flush writes everything buffered and applies a pending expiry. On failure the
// records stay buffered for the next attempt.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.buffer
	w.buffer = make([]models.IncidentRecord, 0, w.cfg.BatchSize)
	cutoff := w.expire
	w.expire = time.Time{}
	w.mu.Unlock()

	if len(batch) > 0 {
		n, err := w.store.InsertBatch(ctx, batch)
		if err != nil {
			w.mu.Lock()
			w.buffer = append(batch, w.buffer...)
			if cutoff.After(w.expire) {
				w.expire = cutoff
			}
			w.mu.Unlock()
			metrics.PersistFlushTotal.WithLabelValues("error").Inc()
			return err
		}
		metrics.PersistFlushTotal.WithLabelValues("ok").Inc()
		logging.Debug().Int("batch", len(batch)).Int64("written", n).Msg("flushed live records")
	}

	if !cutoff.IsZero() {
		n, err := w.store.DeleteLiveBefore(ctx, cutoff)
		if err != nil {
			w.Expire(cutoff)
			return err
		}
		if n > 0 {
			logging.Debug().Int64("deleted", n).Time("before", cutoff).Msg("expired persisted live records")
		}
	}
	return nil
}

// Run flushes on the interval, or sooner when a batch fills, until ctx is done.
// A final flush runs on a fresh context before returning.
func (w *BatchWriter) Run(ctx context.Context) error {
	log := logging.WithComponent("persist")
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := w.Flush(flushCtx); err != nil {
				log.Error().Err(err).Int("pending", w.Pending()).Msg("final flush failed")
				return err
			}
			return nil
		case <-ticker.C:
		case <-w.kick:
		}
		if err := w.Flush(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Int("pending", w.Pending()).Msg("flush failed, will retry")
		}
	}
}
