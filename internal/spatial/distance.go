package spatial

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	EarthRadiusMeters  = 6371000.0 // Earth's mean radius in meters
	MetersPerDegreeLat = EarthRadiusMeters * math.Pi / 180
)

// HaversineDistance calculates the great-circle distance between two points in meters.
// The result is symmetric in its arguments.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Box is a lat/lon rectangle in degrees. MinLon > MaxLon means it crosses the antimeridian.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether the point lies within the box.
func (b Box) Contains(lat, lon float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.MinLon <= b.MaxLon {
		return lon >= b.MinLon && lon <= b.MaxLon
	}
	return lon >= b.MinLon || lon <= b.MaxLon
}

// BoundingBox returns a box that encloses every point within radius meters of (lat, lon).
// It is a cheap prefilter; callers still need the exact distance test.
func BoundingBox(lat, lon, radius float64) Box {
	dLat := radius / MetersPerDegreeLat
	b := Box{MinLat: lat - dLat, MaxLat: lat + dLat}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		return Box{MinLat: math.Max(b.MinLat, -90), MaxLat: math.Min(b.MaxLat, 90), MinLon: -180, MaxLon: 180}
	}
	cos := math.Cos(math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat)) * math.Pi / 180)
	dLon := radius / (MetersPerDegreeLat * cos)
	if dLon >= 180 {
		b.MinLon, b.MaxLon = -180, 180
		return b
	}
	b.MinLon = normalizeLon(lon - dLon)
	b.MaxLon = normalizeLon(lon + dLon)
	return b
}

func normalizeLon(lon float64) float64 {
	for lon < -180 {
		lon += 360
	}
	for lon > 180 {
		lon -= 360
	}
	return lon
}
