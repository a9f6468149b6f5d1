package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jengzang/crime-risk-backend-go/internal/database"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// incidentRow is the incidents table layout.
type incidentRow struct {
	ID         string  `db:"id"`
	Latitude   float64 `db:"latitude"`
	Longitude  float64 `db:"longitude"`
	OccurredAt string  `db:"occurred_at"`
	CrimeType  string  `db:"crime_type"`
	Severity   int     `db:"severity"`
	City       string  `db:"city"`
	Provenance string  `db:"provenance"`
}

func toRow(r models.IncidentRecord) incidentRow {
	return incidentRow{
		ID:         r.ID,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		OccurredAt: r.Timestamp.UTC().Format(timeLayout),
		CrimeType:  r.CrimeType,
		Severity:   r.Severity,
		City:       r.City,
		Provenance: string(r.Provenance),
	}
}

func (row incidentRow) record() (models.IncidentRecord, error) {
	ts, err := time.Parse(timeLayout, row.OccurredAt)
	if err != nil {
		return models.IncidentRecord{}, fmt.Errorf("incident %s: bad timestamp %q: %w", row.ID, row.OccurredAt, err)
	}
	return models.IncidentRecord{
		ID:         row.ID,
		Latitude:   row.Latitude,
		Longitude:  row.Longitude,
		Timestamp:  ts.UTC(),
		CrimeType:  row.CrimeType,
		Severity:   row.Severity,
		City:       row.City,
		Provenance: models.Provenance(row.Provenance),
	}, nil
}

const insertIncident = `
	INSERT OR IGNORE INTO incidents (id, latitude, longitude, occurred_at, crime_type, severity, city, provenance)
	VALUES (:id, :latitude, :longitude, :occurred_at, :crime_type, :severity, :city, :provenance)`

// IncidentRepository handles database operations for incident records
type IncidentRepository struct {
	db *sqlx.DB
}

// NewIncidentRepository creates a new incident repository
func NewIncidentRepository(db *sqlx.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// InsertBatch stores records in one transaction. Ids already present are skipped.
// It returns the number of rows written.
func (r *IncidentRepository) InsertBatch(ctx context.Context, records []models.IncidentRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var written int64
	err := database.Transaction(ctx, r.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, insertIncident)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			res, err := stmt.ExecContext(ctx, toRow(rec))
			if err != nil {
				return fmt.Errorf("failed to insert incident %s: %w", rec.ID, err)
			}
			n, _ := res.RowsAffected()
			written += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// List returns records of the given provenance ordered by time then id.
// An empty provenance returns all records.
func (r *IncidentRepository) List(ctx context.Context, provenance models.Provenance) ([]models.IncidentRecord, error) {
	query := `SELECT id, latitude, longitude, occurred_at, crime_type, severity, city, provenance FROM incidents`
	var args []interface{}
	if provenance != "" {
		query += " WHERE provenance = ?"
		args = append(args, string(provenance))
	}
	query += " ORDER BY occurred_at, id"

	var rows []incidentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}

	out := make([]models.IncidentRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of stored records per provenance.
func (r *IncidentRepository) Count(ctx context.Context) (map[models.Provenance]int, error) {
	var rows []struct {
		Provenance string `db:"provenance"`
		N          int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT provenance, COUNT(*) AS n FROM incidents GROUP BY provenance`); err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	out := make(map[models.Provenance]int, len(rows))
	for _, row := range rows {
		out[models.Provenance(row.Provenance)] = row.N
	}
	return out, nil
}

// DeleteLiveBefore removes live records that occurred before t.
func (r *IncidentRepository) DeleteLiveBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM incidents WHERE provenance = ? AND occurred_at < ?`,
		string(models.ProvenanceLive), t.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired incidents: %w", err)
	}
	return res.RowsAffected()
}
