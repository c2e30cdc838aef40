package photo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wisbric/driverlog/internal/db"
)

// Store provides database operations for incident photos.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a photo Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const photoColumns = `id, incident_id, r2_key, file_name, content_type, size_bytes, sha256, created_at`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.IncidentID, &r.R2Key, &r.FileName,
		&r.ContentType, &r.SizeBytes, &r.SHA256, &r.CreatedAt,
	)
	return r, err
}

// InsertParams holds the metadata for a validated, already-uploaded photo.
type InsertParams struct {
	IncidentID  int64
	R2Key       string
	FileName    string
	ContentType string
	SizeBytes   int64
	SHA256      string
}

// Insert creates the metadata row for a photo whose blob is already written.
func (s *Store) Insert(ctx context.Context, p InsertParams) (Row, error) {
	query := `INSERT INTO incident_photos (incident_id, r2_key, file_name, content_type, size_bytes, sha256)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + photoColumns
	row := s.dbtx.QueryRow(ctx, query,
		p.IncidentID, p.R2Key, p.FileName, p.ContentType, p.SizeBytes, p.SHA256,
	)
	return scanRow(row)
}

// Get returns a single photo by ID.
func (s *Store) Get(ctx context.Context, id int64) (Row, error) {
	query := `SELECT ` + photoColumns + ` FROM incident_photos WHERE id = $1`
	return scanRow(s.dbtx.QueryRow(ctx, query, id))
}

// IncidentInstallation returns the installation id of an incident, used both
// as the existence check and for the blob key. pgx.ErrNoRows when absent.
func (s *Store) IncidentInstallation(ctx context.Context, incidentID int64) (int64, error) {
	var installationID int64
	err := s.dbtx.QueryRow(ctx,
		`SELECT installation_id FROM incidents WHERE id = $1`, incidentID,
	).Scan(&installationID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("looking up incident %d: %w", incidentID, err)
	}
	return installationID, nil
}
