package validation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

func validRecord() models.IncidentRecord {
	return models.IncidentRecord{
		ID:         "r-1",
		Latitude:   28.7041,
		Longitude:  77.1025,
		Timestamp:  time.Date(2023, 5, 1, 22, 0, 0, 0, time.UTC),
		CrimeType:  "Theft",
		Severity:   3,
		Provenance: models.ProvenanceHistorical,
	}
}

func TestRecordAcceptsValid(t *testing.T) {
	require.NoError(t, Record(validRecord()))
}

func TestRecordRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*models.IncidentRecord){
		"Latitude":   func(r *models.IncidentRecord) { r.Latitude = 91 },
		"Longitude":  func(r *models.IncidentRecord) { r.Longitude = -180.5 },
		"Severity":   func(r *models.IncidentRecord) { r.Severity = 6 },
		"ID":         func(r *models.IncidentRecord) { r.ID = "" },
		"CrimeType":  func(r *models.IncidentRecord) { r.CrimeType = "" },
		"Provenance": func(r *models.IncidentRecord) { r.Provenance = "imported" },
		"Timestamp":  func(r *models.IncidentRecord) { r.Timestamp = time.Time{} },
	}
	for field, mutate := range cases {
		rec := validRecord()
		mutate(&rec)
		err := Record(rec)
		require.Error(t, err, field)

		var ve *models.ValidationError
		require.True(t, errors.As(err, &ve), field)
		assert.Equal(t, field, ve.Field)
	}
}

func TestRecordRejectsNaN(t *testing.T) {
	rec := validRecord()
	rec.Latitude = math.NaN()
	assert.True(t, models.IsValidation(Record(rec)))
}

func TestRecordBoundsInclusive(t *testing.T) {
	rec := validRecord()
	rec.Latitude, rec.Longitude, rec.Severity = -90, 180, 1
	assert.NoError(t, Record(rec))
}
