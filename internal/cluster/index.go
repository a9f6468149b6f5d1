package cluster

import (
	"fmt"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/spatial"
)

// NeighborIndex answers joint neighbour queries over a fixed record slice.
type NeighborIndex interface {
	// Neighbors appends the indices of every joint neighbour of record i, including i,
	// in ascending order.
	Neighbors(i int, buf []int) []int
}

// IndexBuilder builds a NeighborIndex for a record slice.
type IndexBuilder func(records []models.IncidentRecord, p Params) NeighborIndex

// Index kinds selectable by configuration.
const (
	IndexNaive = "naive"
	IndexGrid  = "grid"
)

// IndexBuilderFor returns the builder registered under kind.
func IndexBuilderFor(kind string) (IndexBuilder, error) {
	switch kind {
	case IndexNaive:
		return NewNaiveIndex, nil
	case IndexGrid, "":
		return NewGridIndex, nil
	default:
		return nil, fmt.Errorf("unknown neighbour index %q", kind)
	}
}

type naiveIndex struct {
	records []models.IncidentRecord
	params  Params
}

// NewNaiveIndex scans every record per query: O(n) per query, O(n^2) per clustering.
func NewNaiveIndex(records []models.IncidentRecord, p Params) NeighborIndex {
	return &naiveIndex{records: records, params: p}
}

func (x *naiveIndex) Neighbors(i int, buf []int) []int {
	for j := range x.records {
		if j == i || IsNeighbor(x.records[i], x.records[j], x.params) {
			buf = append(buf, j)
		}
	}
	return buf
}

type gridIndex struct {
	records []models.IncidentRecord
	params  Params
	grid    *spatial.Grid
	scratch []int
}

// NewGridIndex buckets records into eps-sized cells and tests only candidates from cells
// overlapping the eps bounding box. It returns exactly the neighbour sets of the naive index.
// It is not safe for concurrent use.
func NewGridIndex(records []models.IncidentRecord, p Params) NeighborIndex {
	points := make([]spatial.Point, len(records))
	for i, r := range records {
		points[i] = spatial.Point{Lat: r.Latitude, Lon: r.Longitude}
	}
	return &gridIndex{records: records, params: p, grid: spatial.NewGrid(points, p.SpatialEpsMeters)}
}

func (x *gridIndex) Neighbors(i int, buf []int) []int {
	r := x.records[i]
	x.scratch = x.grid.Candidates(spatial.BoundingBox(r.Latitude, r.Longitude, x.params.SpatialEpsMeters), x.scratch[:0])
	for _, j := range x.scratch {
		if j == i || IsNeighbor(r, x.records[j], x.params) {
			buf = append(buf, j)
		}
	}
	return buf
}
