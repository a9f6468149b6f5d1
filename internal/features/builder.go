package features

import (
	"math"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/spatial"
)

// Query is a point to featurize. CrimeType and Severity are optional.
type Query struct {
	Latitude  float64
	Longitude float64
	Time      time.Time
	CrimeType string
	Severity  int
}

// QueryFromRecord builds the query for an incident record.
func QueryFromRecord(r models.IncidentRecord) Query {
	return Query{Latitude: r.Latitude, Longitude: r.Longitude, Time: r.Timestamp, CrimeType: r.CrimeType, Severity: r.Severity}
}

// Context is an indexed, read-only set of records that densities are measured against.
type Context struct {
	records []models.IncidentRecord
	hours   []int
	grid    *spatial.Grid
}

// NewContext indexes records for neighbourhood queries of roughly radiusMeters.
func NewContext(records []models.IncidentRecord, radiusMeters float64) *Context {
	points := make([]spatial.Point, len(records))
	hours := make([]int, len(records))
	for i, r := range records {
		points[i] = spatial.Point{Lat: r.Latitude, Lon: r.Longitude}
		hours[i] = r.Timestamp.UTC().Hour()
	}
	return &Context{
		records: records,
		hours:   hours,
		grid:    spatial.NewGrid(points, radiusMeters),
	}
}

// Len returns the number of context records.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// within calls fn for every context record within radius meters of the point.
func (c *Context) within(lat, lon, radius float64, fn func(i int)) {
	if c.Len() == 0 {
		return
	}
	for _, i := range c.grid.Candidates(spatial.BoundingBox(lat, lon, radius), nil) {
		r := c.records[i]
		if spatial.HaversineDistance(lat, lon, r.Latitude, r.Longitude) <= radius {
			fn(i)
		}
	}
}

// LocalDensity counts context records within radius meters of the point.
func (c *Context) LocalDensity(lat, lon, radius float64) int {
	n := 0
	c.within(lat, lon, radius, func(int) { n++ })
	return n
}

// Builder produces vectors under a fixed Schema. It holds no mutable state.
type Builder struct {
	schema Schema
}

// NewBuilder returns a builder for schema.
func NewBuilder(schema Schema) *Builder {
	return &Builder{schema: schema.withDefaults()}
}

// Schema returns the layout the builder produces.
func (b *Builder) Schema() Schema {
	return b.schema
}

// Build featurizes q against ctx. It is deterministic in its inputs; time is bucketed in
// UTC and an empty neighbourhood yields zero density features.
func (b *Builder) Build(q Query, ctx *Context) Vector {
	s := b.schema
	t := q.Time.UTC()
	hour := t.Hour()

	v := make(Vector, s.Dimension())
	v[IdxLatBucket] = bucket(q.Latitude, s.BucketDeg) / 90
	v[IdxLonBucket] = bucket(q.Longitude, s.BucketDeg) / 180
	v[IdxHour] = float64(hour) / 23
	v[IdxWeekday] = float64(t.Weekday()) / 6
	if IsNight(hour) {
		v[IdxNight] = 1
	}
	if q.Severity > 0 {
		v[IdxSeverity] = float64(q.Severity) / models.MaxSeverity
	}
	if q.CrimeType != "" {
		v[s.OneHotOffset()+s.TypeIndex(q.CrimeType)] = 1
	}

	density, hourDensity := 0, 0
	typeCounts := make([]int, s.TypeSlots())
	ctx.within(q.Latitude, q.Longitude, s.RadiusMeters, func(i int) {
		density++
		if hourDistance(ctx.hours[i], hour) <= s.HourBand {
			hourDensity++
		}
		typeCounts[s.TypeIndex(ctx.records[i].CrimeType)]++
	})

	v[IdxDensity] = math.Log1p(float64(density))
	v[IdxHourDensity] = math.Log1p(float64(hourDensity))
	for i, n := range typeCounts {
		v[s.FrequencyOffset()+i] = math.Log1p(float64(n))
	}
	return v
}

// BuildRecord featurizes a record against ctx.
func (b *Builder) BuildRecord(r models.IncidentRecord, ctx *Context) Vector {
	return b.Build(QueryFromRecord(r), ctx)
}

// IsNight reports the late-night window 22:00-04:59 UTC.
func IsNight(hour int) bool {
	return hour >= 22 || hour <= 4
}

// IsEvening reports the evening window 18:00-21:59 UTC.
func IsEvening(hour int) bool {
	return hour >= 18 && hour < 22
}

func bucket(deg, size float64) float64 {
	return math.Floor(deg/size) * size
}

func hourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return d
}
