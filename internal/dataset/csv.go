// Package dataset loads, saves and synthesizes historical incident records.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/validation"
)

// Columns is the CSV header written by Save.
var Columns = []string{"id", "date", "city", "latitude", "longitude", "crime_type", "severity"}

var required = []string{"date", "latitude", "longitude", "crime_type", "severity"}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// LoadFile reads historical records from a CSV file.
func LoadFile(path string) ([]models.IncidentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads historical records from CSV. The header may list columns in any
// order and may omit id, in which case ids are derived from the row number.
// Unknown columns are ignored.
func Load(r io.Reader) ([]models.IncidentRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("dataset missing column %q", name)
		}
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []models.IncidentRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec := models.IncidentRecord{
			ID:         field(row, "id"),
			City:       field(row, "city"),
			CrimeType:  field(row, "crime_type"),
			Provenance: models.ProvenanceHistorical,
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("row-%d", line-1)
		}
		if rec.Timestamp, err = parseDate(field(row, "date")); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Latitude, err = strconv.ParseFloat(field(row, "latitude"), 64); err != nil {
			return nil, fmt.Errorf("line %d: bad latitude: %w", line, err)
		}
		if rec.Longitude, err = strconv.ParseFloat(field(row, "longitude"), 64); err != nil {
			return nil, fmt.Errorf("line %d: bad longitude: %w", line, err)
		}
		if rec.Severity, err = strconv.Atoi(field(row, "severity")); err != nil {
			return nil, fmt.Errorf("line %d: bad severity: %w", line, err)
		}
		if err := validation.Record(rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveFile writes records to path, creating its directory.
func SaveFile(path string, records []models.IncidentRecord) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dataset directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	if err := Save(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Save writes records as CSV with the standard header.
func Save(w io.Writer, records []models.IncidentRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			r.City,
			strconv.FormatFloat(r.Latitude, 'f', -1, 64),
			strconv.FormatFloat(r.Longitude, 'f', -1, 64),
			r.CrimeType,
			strconv.Itoa(r.Severity),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
