// Package riskindex maintains the dynamic risk index: per s2 cell, static historical
// density plus an exponentially decaying contribution from recent live events.
package riskindex

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/golang/geo/s2"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/spatial"
)

// Zone labels, by rank of the index value among all cells.
const (
	ZoneHot  = "HOT"  // top 10%
	ZoneWarm = "WARM" // next 20%
	ZoneCold = "COLD"
)

// negligible live contributions are dropped on Decay.
const negligible = 1e-6

// Config controls cell resolution and decay.
type Config struct {
	CellLevel      int           // s2 level; 13 is roughly 1 km
	HalfLife       time.Duration // live contribution halves every HalfLife
	LiveWeight     float64       // multiplier on the live part when combining
	NeighborWeight float64       // share of an event credited to each adjacent cell
}

// DefaultConfig returns the default index configuration.
func DefaultConfig() Config {
	return Config{CellLevel: 13, HalfLife: 30 * time.Minute, LiveWeight: 5, NeighborWeight: 0.5}
}

type cell struct {
	static float64
	live   float64   // live level as of at
	at     time.Time // time of the last contribution or decay fold
}

// Index is safe for concurrent use.
type Index struct {
	cfg   Config
	mu    sync.RWMutex
	cells map[s2.CellID]*cell
}

// New seeds static density from the historical records.
func New(cfg Config, historical []models.IncidentRecord) *Index {
	def := DefaultConfig()
	if cfg.CellLevel <= 0 || cfg.CellLevel > s2.MaxLevel {
		cfg.CellLevel = def.CellLevel
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = def.HalfLife
	}
	if cfg.LiveWeight <= 0 {
		cfg.LiveWeight = def.LiveWeight
	}
	if cfg.NeighborWeight < 0 {
		cfg.NeighborWeight = 0
	}

	x := &Index{cfg: cfg, cells: make(map[s2.CellID]*cell)}
	for _, r := range historical {
		x.get(spatial.CellAt(r.Latitude, r.Longitude, cfg.CellLevel)).static++
	}
	return x
}

// Config returns the effective configuration.
func (x *Index) Config() Config {
	return x.cfg
}

func (x *Index) get(id s2.CellID) *cell {
	c, ok := x.cells[id]
	if !ok {
		c = &cell{}
		x.cells[id] = c
	}
	return c
}

// decay returns the factor applied after elapsed time.
func (x *Index) decay(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	return math.Exp2(-float64(elapsed) / float64(x.cfg.HalfLife))
}

func (c *cell) add(weight float64, t time.Time, decay func(time.Duration) float64) {
	switch {
	case c.at.IsZero():
		c.live, c.at = weight, t
	case t.After(c.at):
		c.live = c.live*decay(t.Sub(c.at)) + weight
		c.at = t
	default:
		// Out-of-order event: credit it as already decayed to the cell's reference time.
		c.live += weight * decay(c.at.Sub(t))
	}
}

func (c *cell) liveAt(now time.Time, decay func(time.Duration) float64) float64 {
	if c.live == 0 {
		return 0
	}
	return c.live * decay(now.Sub(c.at))
}

// Add credits a live record to its cell and, scaled by NeighborWeight, to adjacent cells.
// The weight is severity/5, or 1 when severity is unset.
func (x *Index) Add(rec models.IncidentRecord) {
	w := 1.0
	if rec.Severity > 0 {
		w = float64(rec.Severity) / models.MaxSeverity
	}
	home := spatial.CellAt(rec.Latitude, rec.Longitude, x.cfg.CellLevel)
	cells := spatial.CellNeighborhood(home)
	t := rec.Timestamp.UTC()

	x.mu.Lock()
	defer x.mu.Unlock()
	x.get(home).add(w, t, x.decay)
	if x.cfg.NeighborWeight == 0 {
		return
	}
	for _, id := range cells[1:] {
		x.get(id).add(w*x.cfg.NeighborWeight, t, x.decay)
	}
}

// Value returns the index at the point's cell as of now.
func (x *Index) Value(lat, lon float64, now time.Time) float64 {
	return x.Cell(lat, lon, now).Index
}

// Cell returns the index breakdown at the point's cell as of now.
func (x *Index) Cell(lat, lon float64, now time.Time) models.RiskCell {
	id := spatial.CellAt(lat, lon, x.cfg.CellLevel)
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.cells[id]
	if !ok {
		c = &cell{}
	}
	return x.view(id, c, now)
}

func (x *Index) view(id s2.CellID, c *cell, now time.Time) models.RiskCell {
	lat, lon := spatial.CellCenter(id)
	live := c.liveAt(now, x.decay)
	return models.RiskCell{
		CellID:    id.ToToken(),
		Latitude:  lat,
		Longitude: lon,
		Static:    c.static,
		Live:      live,
		Index:     c.static + x.cfg.LiveWeight*live,
		UpdatedAt: c.at,
	}
}

// Decay folds elapsed decay into every cell as of now and drops live parts that have
// become negligible. Cells left with no static or live density are removed. It returns
// the number of removed cells. Index values are unchanged apart from the dropped residue.
func (x *Index) Decay(now time.Time) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	removed := 0
	for id, c := range x.cells {
		if c.live == 0 {
			continue
		}
		if now.After(c.at) {
			c.live = c.liveAt(now, x.decay)
			c.at = now
		}
		if c.live < negligible {
			c.live = 0
			c.at = time.Time{}
			if c.static == 0 {
				delete(x.cells, id)
				removed++
			}
		}
	}
	return removed
}

// Cells returns every cell as of now, ordered by cell id.
func (x *Index) Cells(now time.Time) []models.RiskCell {
	x.mu.RLock()
	ids := make([]s2.CellID, 0, len(x.cells))
	for id := range x.cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.RiskCell, len(ids))
	for i, id := range ids {
		out[i] = x.view(id, x.cells[id], now)
	}
	x.mu.RUnlock()
	return out
}

// Top returns the n highest cells as of now with their zone labels.
func (x *Index) Top(n int, now time.Time) []models.RiskCell {
	cells := x.Cells(now)
	sort.SliceStable(cells, func(i, j int) bool { return cells[i].Index > cells[j].Index })
	total := len(cells)
	for i := range cells {
		switch {
		case i < int(math.Ceil(float64(total)*0.1)):
			cells[i].Zone = ZoneHot
		case i < int(math.Ceil(float64(total)*0.3)):
			cells[i].Zone = ZoneWarm
		default:
			cells[i].Zone = ZoneCold
		}
	}
	if n > 0 && len(cells) > n {
		cells = cells[:n]
	}
	return cells
}

// Len returns the number of tracked cells.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.cells)
}
