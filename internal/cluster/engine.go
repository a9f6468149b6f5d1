package cluster

import (
	"context"
	"sort"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/stats"
)

// MaxRepresentativeTypes caps Cluster.CrimeTypes.
const MaxRepresentativeTypes = 3

const (
	unassigned = -1
	cancelMask = 127 // check ctx every 128 records
)

// Engine clusters incident records. It is stateless apart from the index choice and is
// safe for concurrent use.
type Engine struct {
	newIndex IndexBuilder
}

// NewEngine returns an engine using the neighbour index registered under kind.
func NewEngine(kind string) (*Engine, error) {
	b, err := IndexBuilderFor(kind)
	if err != nil {
		return nil, err
	}
	return &Engine{newIndex: b}, nil
}

// NewEngineWithIndex returns an engine backed by a custom neighbour index.
func NewEngineWithIndex(b IndexBuilder) *Engine {
	return &Engine{newIndex: b}
}

// Cluster groups records into hotspots.
//
// Records are processed in ascending id order, so the result does not depend on input
// order. Clusters are seeded from unassigned core points in that order and expanded
// breadth-first over ascending neighbour ids. A border point reachable from several
// clusters belongs to the first one that reaches it, which is the one with the lowest
// cluster id. Noise is dropped. Duplicate ids keep their first occurrence.
func (e *Engine) Cluster(ctx context.Context, records []models.IncidentRecord, p Params) ([]models.Cluster, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	recs := sortedUnique(records)
	if len(recs) == 0 {
		return []models.Cluster{}, nil
	}

	idx := e.newIndex(recs, p)
	var buf []int

	core := make([]bool, len(recs))
	for i := range recs {
		if i&cancelMask == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		buf = idx.Neighbors(i, buf[:0])
		core[i] = len(buf) >= p.MinPoints
	}

	labels := make([]int, len(recs))
	for i := range labels {
		labels[i] = unassigned
	}

	next := 0
	var queue []int
	visited := 0
	for seed := range recs {
		if !core[seed] || labels[seed] != unassigned {
			continue
		}
		id := next
		next++
		labels[seed] = id
		queue = append(queue[:0], seed)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited++; visited&cancelMask == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			buf = idx.Neighbors(cur, buf[:0])
			for _, nb := range buf {
				if labels[nb] != unassigned {
					continue
				}
				labels[nb] = id
				if core[nb] {
					queue = append(queue, nb)
				}
			}
		}
	}

	return summarize(recs, labels, next), nil
}

func sortedUnique(records []models.IncidentRecord) []models.IncidentRecord {
	recs := make([]models.IncidentRecord, len(records))
	copy(recs, records)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	out := recs[:0]
	for i, r := range recs {
		if i > 0 && r.ID == recs[i-1].ID {
			continue
		}
		out = append(out, r)
	}
	return out
}

func summarize(recs []models.IncidentRecord, labels []int, n int) []models.Cluster {
	type acc struct {
		lat, lon, sev float64
		types         stats.Counter
		members       []int
	}
	accs := make([]acc, n)
	for i, l := range labels {
		if l == unassigned {
			continue
		}
		a := &accs[l]
		r := recs[i]
		a.lat += r.Latitude
		a.lon += r.Longitude
		a.sev += float64(r.Severity)
		if a.types == nil {
			a.types = stats.Counter{}
		}
		a.types.Add(r.CrimeType)
		a.members = append(a.members, i)
	}

	out := make([]models.Cluster, n)
	for id, a := range accs {
		count := float64(len(a.members))
		c := models.Cluster{
			ID:           id,
			Latitude:     a.lat / count,
			Longitude:    a.lon / count,
			Count:        len(a.members),
			MeanSeverity: a.sev / count,
			CrimeTypes:   a.types.Top(MaxRepresentativeTypes),
			MemberIDs:    make([]string, len(a.members)),
		}
		for k, i := range a.members {
			ts := recs[i].Timestamp
			if k == 0 || ts.Before(c.Start) {
				c.Start = ts
			}
			if k == 0 || ts.After(c.End) {
				c.End = ts
			}
			c.MemberIDs[k] = recs[i].ID
		}
		out[id] = c
	}
	return out
}
