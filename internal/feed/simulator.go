package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// SimulatorConfig configures the simulated feed.
type SimulatorConfig struct {
	Interval  time.Duration
	CenterLat float64
	CenterLon float64
	JitterDeg float64
	Seed      int64
}

// simulatedTypes are drawn uniformly.
var simulatedTypes = []string{"Theft", "Assault", "Burglary", "Vandalism", "Fraud", "Harassment"}

// eventChance is the per-tick probability of emitting events.
const eventChance = 0.7

// Simulator emits random events around a centre point.
type Simulator struct {
	cfg SimulatorConfig
	rng *rand.Rand
	now func() time.Time

	ticker *time.Ticker
}

// NewSimulator creates a simulator. A zero seed uses the current time.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
		ticker: time.NewTicker(cfg.Interval),
	}
}

// Generate draws one tick's worth of events stamped at now. It returns no events
// 30% of the time and one or two otherwise.
func (s *Simulator) Generate(now time.Time) []models.LiveEvent {
	if s.rng.Float64() >= eventChance {
		return nil
	}
	n := 1 + s.rng.Intn(2)
	out := make([]models.LiveEvent, 0, n)
	for i := 0; i < n; i++ {
		id, err := uuid.NewRandomFromReader(s.rng)
		if err != nil {
			id = uuid.New()
		}
		out = append(out, models.LiveEvent{
			ID:        id.String(),
			Latitude:  s.cfg.CenterLat + (s.rng.Float64()*2-1)*s.cfg.JitterDeg,
			Longitude: s.cfg.CenterLon + (s.rng.Float64()*2-1)*s.cfg.JitterDeg,
			Timestamp: now.UTC().Format(time.RFC3339Nano),
			CrimeType: simulatedTypes[s.rng.Intn(len(simulatedTypes))],
			Severity:  1 + s.rng.Intn(models.MaxSeverity),
		})
	}
	return out
}

// Next waits one interval and generates events.
func (s *Simulator) Next(ctx context.Context) ([]models.LiveEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
		return s.Generate(s.now()), nil
	}
}

// Close stops the ticker.
func (s *Simulator) Close() error {
	s.ticker.Stop()
	return nil
}
