package spatial

import (
	"math"
	"sort"
)

// Point is a location in degrees.
type Point struct {
	Lat, Lon float64
}

type cellKey struct {
	X, Y int
}

// Grid is an immutable spatial hash over a fixed point set. Columns wrap at the
// antimeridian. Cell size only affects speed: Candidates returns every point whose cell
// overlaps the query box.
type Grid struct {
	latCell float64 // degrees
	lonCell float64 // degrees
	cols    int
	rows    int
	cells   map[cellKey][]int
}

// NewGrid indexes points into cells roughly cellMeters wide. Longitude cells are widened
// by the cosine of the highest absolute latitude among the points.
func NewGrid(points []Point, cellMeters float64) *Grid {
	if cellMeters <= 0 {
		cellMeters = 1000
	}
	maxAbsLat := 0.0
	for _, p := range points {
		maxAbsLat = math.Max(maxAbsLat, math.Abs(p.Lat))
	}

	latCell := math.Min(cellMeters/MetersPerDegreeLat, 180)
	cos := math.Cos(math.Min(maxAbsLat+latCell, 89.0) * math.Pi / 180)
	lonCell := math.Min(latCell/cos, 360)

	g := &Grid{
		latCell: latCell,
		lonCell: lonCell,
		cols:    int(math.Ceil(360 / lonCell)),
		rows:    int(math.Ceil(180 / latCell)),
		cells:   make(map[cellKey][]int),
	}
	for i, p := range points {
		k := cellKey{X: g.col(p.Lon), Y: g.row(p.Lat)}
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *Grid) col(lon float64) int {
	x := int(math.Floor((normalizeLon(lon) + 180) / g.lonCell))
	if x >= g.cols {
		x = g.cols - 1
	}
	if x < 0 {
		x = 0
	}
	return x
}

func (g *Grid) row(lat float64) int {
	y := int(math.Floor((lat + 90) / g.latCell))
	if y >= g.rows {
		y = g.rows - 1
	}
	if y < 0 {
		y = 0
	}
	return y
}

// Len returns the number of non-empty cells.
func (g *Grid) Len() int {
	return len(g.cells)
}

// Candidates appends to buf the indices of all points in cells overlapping b, sorted
// ascending, and returns the extended slice.
func (g *Grid) Candidates(b Box, buf []int) []int {
	start := len(buf)
	y0, y1 := g.row(b.MinLat), g.row(b.MaxLat)

	type span struct{ x0, x1 int }
	var spans []span
	if b.MinLon <= b.MaxLon {
		spans = []span{{g.col(b.MinLon), g.col(b.MaxLon)}}
	} else {
		spans = []span{{g.col(b.MinLon), g.cols - 1}, {0, g.col(b.MaxLon)}}
	}

	area := 0
	for _, s := range spans {
		area += (s.x1 - s.x0 + 1) * (y1 - y0 + 1)
	}

	if area > len(g.cells) {
		for k, idx := range g.cells {
			if k.Y < y0 || k.Y > y1 {
				continue
			}
			for _, s := range spans {
				if k.X >= s.x0 && k.X <= s.x1 {
					buf = append(buf, idx...)
					break
				}
			}
		}
	} else {
		for _, s := range spans {
			for y := y0; y <= y1; y++ {
				for x := s.x0; x <= s.x1; x++ {
					buf = append(buf, g.cells[cellKey{X: x, Y: y}]...)
				}
			}
		}
	}

	sort.Ints(buf[start:])
	return buf
}
