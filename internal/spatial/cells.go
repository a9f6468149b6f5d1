package spatial

import "github.com/golang/geo/s2"

// CellAt returns the s2 cell at level containing the point.
func CellAt(lat, lon float64, level int) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(level)
}

// CellCenter returns the center of a cell in degrees.
func CellCenter(id s2.CellID) (lat, lon float64) {
	ll := id.LatLng()
	return ll.Lat.Degrees(), ll.Lng.Degrees()
}

// CellNeighborhood returns the cell followed by every cell at the same level that
// shares an edge or vertex with it.
func CellNeighborhood(id s2.CellID) []s2.CellID {
	out := []s2.CellID{id}
	return append(out, id.AllNeighbors(id.Level())...)
}

// CellEdgeMeters approximates the edge length of a cell at level.
func CellEdgeMeters(level int) float64 {
	return s2.AvgEdgeMetric.Value(level) * EarthRadiusMeters
}
