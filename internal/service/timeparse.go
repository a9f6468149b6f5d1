package service

import (
	"strings"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

const dateLayout = "2006-01-02"

// Accepted timestamp layouts, tried in order. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateLayout,
}

// ParseTime parses an ISO-8601 timestamp or a bare date.
func ParseTime(field, value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, models.NewValidationError(field, "invalid timestamp "+quote(value)+", expected ISO-8601 or YYYY-MM-DD")
}

// parseBound parses an optional range bound. A bare date used as an end bound covers the
// whole day.
func parseBound(field, value string, end bool) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	t, err := ParseTime(field, value)
	if err != nil {
		return time.Time{}, err
	}
	if end && len(strings.TrimSpace(value)) == len(dateLayout) {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// parseRange parses start/end strings into a record filter.
func parseRange(crimeType, start, end string) (models.RecordFilter, error) {
	f := models.RecordFilter{CrimeType: strings.TrimSpace(crimeType)}
	var err error
	if f.Start, err = parseBound("start_date", start, false); err != nil {
		return f, err
	}
	if f.End, err = parseBound("end_date", end, true); err != nil {
		return f, err
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return f, models.NewValidationError("start_date", "must not be after end_date")
	}
	return f, nil
}

func quote(s string) string {
	if r := []rune(s); len(r) > 40 {
		s = string(r[:40]) + "..."
	}
	return `"` + s + `"`
}
