// Package live merges the live event stream into the engine. The Coordinator is the only
// writer of the record store and the dynamic risk index, and the only component that
// triggers and publishes cluster recomputes.
package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jengzang/crime-risk-backend-go/internal/cluster"
	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/metrics"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/riskindex"
	"github.com/jengzang/crime-risk-backend-go/internal/store"
	"github.com/jengzang/crime-risk-backend-go/internal/validation"
)

// ErrSuperseded is returned by Recompute when a newer request overtook it.
var ErrSuperseded = errors.New("recompute superseded by a newer request")

// State is the coordinator's ingestion state.
type State int32

const (
	StateIdle State = iota
	StateIngesting
	StateRecomputing
)

func (s State) String() string {
	switch s {
	case StateIngesting:
		return "ingesting"
	case StateRecomputing:
		return "recomputing"
	default:
		return "idle"
	}
}

// Recompute outcomes, as reported to metrics.
const (
	outcomePublished  = "published"
	outcomeSuperseded = "superseded"
	outcomeCanceled   = "canceled"
	outcomeFailed     = "failed"
)

// Clusterer runs one clustering pass.
type Clusterer interface {
	Cluster(ctx context.Context, records []models.IncidentRecord, p cluster.Params) ([]models.Cluster, error)
}

// Flagger scores a record for anomaly.
type Flagger interface {
	Flag(rec models.IncidentRecord) (models.AnomalyFlag, error)
}

// Sink receives accepted live records and expiry notices. Implementations must not block.
type Sink interface {
	Write(rec models.IncidentRecord)
	Expire(before time.Time)
}

// Publisher receives every published cluster set.
type Publisher interface {
	Publish(set *models.ClusterSet) error
}

// Config controls retention and recompute triggers.
type Config struct {
	Retention         time.Duration
	RecomputeEvents   int
	RecomputeInterval time.Duration
	PruneInterval     time.Duration
	Cluster           cluster.Params
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Retention:         24 * time.Hour,
		RecomputeEvents:   10,
		RecomputeInterval: time.Minute,
		PruneInterval:     30 * time.Second,
		Cluster: cluster.Params{
			SpatialEpsMeters: 1000,
			TemporalEps:      720 * time.Hour,
			MinPoints:        5,
		},
	}
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithFlagger enables anomaly scoring of historical and live records.
func WithFlagger(f Flagger) Option {
	return func(c *Coordinator) { c.flagger = f }
}

// WithSink adds a sink for accepted live records.
func WithSink(s Sink) Option {
	return func(c *Coordinator) { c.sinks = append(c.sinks, s) }
}

// WithPublisher adds a receiver of published cluster sets.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.publishers = append(c.publishers, p) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// Coordinator serializes ingestion and versions cluster publication.
type Coordinator struct {
	cfg        Config
	store      *store.Store
	index      *riskindex.Index
	clusterer  Clusterer
	flagger    Flagger
	sinks      []Sink
	publishers []Publisher
	now        func() time.Time
	log        zerolog.Logger

	mu            sync.Mutex // single writer: ingest, prune, recompute requests
	pending       int
	lastRecompute time.Time
	closed        bool
	// Accepted live ids with their timestamps, kept until they leave the retention
	// window even when the store ring has already evicted them.
	seen map[string]time.Time

	ingesting atomic.Bool
	inflight  atomic.Int32
	requested atomic.Uint64
	published atomic.Pointer[models.ClusterSet]

	cancelMu sync.Mutex
	cancel   context.CancelFunc // cancels the in-flight async recompute

	flagsMu sync.RWMutex
	flags   map[string]models.AnomalyFlag

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New builds a coordinator. The published set starts empty at version 0.
func New(cfg Config, st *store.Store, idx *riskindex.Index, cl Clusterer, opts ...Option) (*Coordinator, error) {
	if err := cfg.Cluster.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster params: %w", err)
	}
	def := DefaultConfig()
	if cfg.RecomputeEvents <= 0 {
		cfg.RecomputeEvents = def.RecomputeEvents
	}
	if cfg.RecomputeInterval <= 0 {
		cfg.RecomputeInterval = def.RecomputeInterval
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}

	c := &Coordinator{
		cfg:       cfg,
		store:     st,
		index:     idx,
		clusterer: cl,
		now:       time.Now,
		log:       logging.WithComponent("live"),
		flags:     make(map[string]models.AnomalyFlag),
		seen:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.base, c.stop = context.WithCancel(context.Background())
	c.published.Store(&models.ClusterSet{Clusters: []models.Cluster{}})
	c.lastRecompute = c.now()

	if c.flagger != nil {
		for _, rec := range st.Historical() {
			c.flag(rec)
		}
	}
	_, live := st.Counts()
	metrics.LiveRecords.Set(float64(live))
	return c, nil
}

// State reports the current state.
func (c *Coordinator) State() State {
	switch {
	case c.ingesting.Load():
		return StateIngesting
	case c.inflight.Load() > 0:
		return StateRecomputing
	default:
		return StateIdle
	}
}

// Store returns the record store the coordinator writes to.
func (c *Coordinator) Store() *store.Store { return c.store }

// Index returns the dynamic risk index the coordinator writes to.
func (c *Coordinator) Index() *riskindex.Index { return c.index }

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// Pending returns the number of accepted events since the last recompute request.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Ingest validates and merges one live event. A duplicate id is accepted as a no-op.
// Malformed events are rejected with a ValidationError and leave every structure untouched.
func (c *Coordinator) Ingest(ctx context.Context, rec models.IncidentRecord) (models.IngestResult, error) {
	rec.Provenance = models.ProvenanceLive
	rec.Timestamp = rec.Timestamp.UTC()
	res := models.IngestResult{ID: rec.ID}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := validation.Record(rec); err != nil {
		return c.reject(res, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ingesting.Store(true)
	defer c.ingesting.Store(false)

	if _, dup := c.seen[rec.ID]; dup || c.store.Has(rec.ID) {
		metrics.IngestTotal.WithLabelValues(string(models.IngestDuplicate)).Inc()
		res.Status = models.IngestDuplicate
		return res, nil
	}

	now := c.now()
	if c.cfg.Retention > 0 && rec.Timestamp.Before(now.Add(-c.cfg.Retention)) {
		return c.reject(res, models.NewValidationError("Timestamp",
			fmt.Sprintf("older than the %s live retention window", c.cfg.Retention)))
	}

	evicted, err := c.store.Append(rec)
	if err != nil {
		return c.reject(res, err)
	}
	c.dropFlags(evicted)
	c.seen[rec.ID] = rec.Timestamp
	c.index.Add(rec)

	if flag, ok := c.flag(rec); ok {
		res.Anomaly = &flag
	}
	for _, s := range c.sinks {
		s.Write(rec)
	}

	_, live := c.store.Counts()
	metrics.LiveRecords.Set(float64(live))
	metrics.IngestTotal.WithLabelValues(string(models.IngestAccepted)).Inc()

	c.pending++
	if c.due(now) {
		c.requestLocked("events")
	}
	res.Status = models.IngestAccepted
	return res, nil
}

func (c *Coordinator) reject(res models.IngestResult, err error) (models.IngestResult, error) {
	metrics.IngestTotal.WithLabelValues(string(models.IngestRejected)).Inc()
	c.log.Warn().Err(err).Str("id", res.ID).Msg("live event rejected")
	res.Status = models.IngestRejected
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		res.Reason = ve.Reason
	} else {
		res.Reason = err.Error()
	}
	return res, err
}

// due reports whether a recompute trigger fired. Requires c.mu.
func (c *Coordinator) due(now time.Time) bool {
	if c.pending == 0 {
		return false
	}
	return c.pending >= c.cfg.RecomputeEvents || now.Sub(c.lastRecompute) >= c.cfg.RecomputeInterval
}

// flag scores rec and caches the result. Scoring failures are logged and leave no flag.
func (c *Coordinator) flag(rec models.IncidentRecord) (models.AnomalyFlag, bool) {
	if c.flagger == nil {
		return models.AnomalyFlag{}, false
	}
	f, err := c.flagger.Flag(rec)
	if err != nil {
		c.log.Error().Err(err).Str("id", rec.ID).Msg("anomaly scoring failed")
		return models.AnomalyFlag{}, false
	}
	c.flagsMu.Lock()
	c.flags[rec.ID] = f
	c.flagsMu.Unlock()
	return f, true
}

func (c *Coordinator) dropFlags(ids []string) {
	if len(ids) == 0 {
		return
	}
	c.flagsMu.Lock()
	for _, id := range ids {
		delete(c.flags, id)
	}
	c.flagsMu.Unlock()
}

// Anomalies returns cached flags for records whose timestamp falls in w, most anomalous
// first. Ties are broken by record id.
func (c *Coordinator) Anomalies(w models.AnomalyWindow, onlyAnomalous bool) []models.AnomalyFlag {
	c.flagsMu.RLock()
	out := make([]models.AnomalyFlag, 0, len(c.flags))
	for _, f := range c.flags {
		if onlyAnomalous && !f.IsAnomalous {
			continue
		}
		if w.Contains(f.Timestamp) {
			out = append(out, f)
		}
	}
	c.flagsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AnomalyScore != out[j].AnomalyScore {
			return out[i].AnomalyScore < out[j].AnomalyScore
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out
}

// Hotspots returns the published cluster set. The warning is non-nil while a newer
// recompute is still running.
func (c *Coordinator) Hotspots() (*models.ClusterSet, *models.StaleClusterWarning) {
	set := c.published.Load()
	if c.inflight.Load() == 0 {
		return set, nil
	}
	pending := c.requested.Load()
	if pending <= set.Version {
		return set, nil
	}
	return set, &models.StaleClusterWarning{ServingVersion: set.Version, PendingVersion: pending}
}

// Version returns the published cluster set version.
func (c *Coordinator) Version() uint64 {
	return c.published.Load().Version
}

// RequestRecompute starts an asynchronous recompute over the current snapshot.
func (c *Coordinator) RequestRecompute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestLocked("manual")
}

// requestLocked takes the next version and snapshot, cancels whatever is running and
// starts the new run in the background. Requires c.mu.
func (c *Coordinator) requestLocked(reason string) {
	if c.closed {
		c.log.Debug().Str("reason", reason).Msg("recompute skipped, coordinator closed")
		return
	}
	v, snap := c.beginLocked()
	ctx, cancel := context.WithCancel(c.base)
	c.swapCancel(cancel)

	c.log.Debug().Uint64("version", v).Str("reason", reason).Int("records", len(snap)).Msg("recompute requested")
	c.inflight.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inflight.Add(-1)
		defer cancel()
		_, _ = c.recompute(ctx, v, snap)
	}()
}

// beginLocked assigns a version and takes the snapshot it will cluster. Requires c.mu.
func (c *Coordinator) beginLocked() (uint64, []models.IncidentRecord) {
	c.pending = 0
	c.lastRecompute = c.now()
	return c.requested.Add(1), c.store.Snapshot()
}

func (c *Coordinator) swapCancel(next context.CancelFunc) {
	c.cancelMu.Lock()
	prev := c.cancel
	c.cancel = next
	c.cancelMu.Unlock()
	if prev != nil {
		prev()
	}
}

// Recompute clusters the current snapshot in the caller's goroutine and publishes the
// result. It returns ErrSuperseded when a newer request was made before it finished.
func (c *Coordinator) Recompute(ctx context.Context) (*models.ClusterSet, error) {
	c.mu.Lock()
	v, snap := c.beginLocked()
	c.swapCancel(nil)
	c.mu.Unlock()

	c.inflight.Add(1)
	defer c.inflight.Add(-1)
	return c.recompute(ctx, v, snap)
}

func (c *Coordinator) recompute(ctx context.Context, v uint64, snap []models.IncidentRecord) (*models.ClusterSet, error) {
	start := time.Now()
	clusters, err := c.clusterer.Cluster(ctx, snap, c.cfg.Cluster)
	if err != nil {
		if ctx.Err() != nil {
			metrics.RecordRecompute(outcomeCanceled, time.Since(start))
			c.log.Debug().Uint64("version", v).Msg("recompute canceled")
			if c.requested.Load() != v {
				return nil, ErrSuperseded
			}
			return nil, ctx.Err()
		}
		metrics.RecordRecompute(outcomeFailed, time.Since(start))
		c.log.Error().Err(err).Uint64("version", v).Msg("recompute failed")
		return nil, fmt.Errorf("failed to cluster snapshot: %w", err)
	}

	set := &models.ClusterSet{
		Version:    v,
		RunID:      uuid.NewString(),
		ComputedAt: c.now().UTC(),
		Records:    len(snap),
		Clusters:   clusters,
	}
	if !c.publish(set) {
		metrics.RecordRecompute(outcomeSuperseded, time.Since(start))
		c.log.Debug().Uint64("version", v).Uint64("latest", c.requested.Load()).Msg("recompute superseded, discarded")
		return nil, ErrSuperseded
	}

	metrics.RecordRecompute(outcomePublished, time.Since(start))
	metrics.ClusterVersion.Set(float64(v))
	c.log.Info().
		Uint64("version", v).
		Str("run_id", set.RunID).
		Int("records", set.Records).
		Int("clusters", len(clusters)).
		Dur("took", time.Since(start)).
		Msg("cluster set published")

	for _, p := range c.publishers {
		if err := p.Publish(set); err != nil {
			c.log.Error().Err(err).Uint64("version", v).Msg("cluster set export failed")
		}
	}
	return set, nil
}

// publish swaps in set when it answers the latest request and is newer than what is served.
func (c *Coordinator) publish(set *models.ClusterSet) bool {
	for {
		if c.requested.Load() != set.Version {
			return false
		}
		cur := c.published.Load()
		if cur.Version >= set.Version {
			return false
		}
		if c.published.CompareAndSwap(cur, set) {
			return true
		}
	}
}

// Prune expires live records older than the retention window and folds decay into the
// risk index. The published cluster set is left as is. It returns the pruned ids.
func (c *Coordinator) Prune(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pruned []string
	if c.cfg.Retention > 0 {
		before := now.Add(-c.cfg.Retention)
		pruned = c.store.PruneLive(before)
		c.dropFlags(pruned)
		for id, ts := range c.seen {
			if ts.Before(before) {
				delete(c.seen, id)
			}
		}
		for _, s := range c.sinks {
			s.Expire(before)
		}
	}
	cells := c.index.Decay(now)

	_, live := c.store.Counts()
	metrics.LiveRecords.Set(float64(live))
	if len(pruned) > 0 || cells > 0 {
		c.log.Debug().Int("records", len(pruned)).Int("cells", cells).Msg("pruned live state")
	}
	return pruned
}

// Tick runs the time-based recompute trigger.
func (c *Coordinator) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending > 0 && now.Sub(c.lastRecompute) >= c.cfg.RecomputeInterval {
		c.requestLocked("interval")
	}
}

// Run prunes and checks the time trigger until ctx is done, then cancels any in-flight
// recompute and waits for it.
func (c *Coordinator) Run(ctx context.Context) error {
	prune := time.NewTicker(c.cfg.PruneInterval)
	defer prune.Stop()
	trigger := time.NewTicker(triggerPeriod(c.cfg.RecomputeInterval))
	defer trigger.Stop()

	c.log.Info().
		Dur("prune_interval", c.cfg.PruneInterval).
		Dur("recompute_interval", c.cfg.RecomputeInterval).
		Int("recompute_events", c.cfg.RecomputeEvents).
		Msg("live coordinator started")

	for {
		select {
		case <-ctx.Done():
			c.Close()
			c.log.Info().Msg("live coordinator stopped")
			return nil
		case <-prune.C:
			c.Prune(c.now())
		case <-trigger.C:
			c.Tick(c.now())
		}
	}
}

func triggerPeriod(interval time.Duration) time.Duration {
	p := interval / 4
	if p < time.Second {
		p = time.Second
	}
	return p
}

// Close cancels in-flight recomputes and waits for them to return. No recompute is
// started asynchronously afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

// Wait blocks until no asynchronous recompute is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
