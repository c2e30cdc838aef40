package incident

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wisbric/driverlog/internal/db"
)

// Store provides database operations for incidents and their photos.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an incident Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const incidentColumns = `id, installation_id, reporter_username, note, time_adjustment_seconds,
	severity, source, created_at`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.InstallationID, &r.ReporterUsername, &r.Note,
		&r.TimeAdjustmentSeconds, &r.Severity, &r.Source, &r.CreatedAt,
	)
	return r, err
}

// Insert creates an incident and returns the stored row.
func (s *Store) Insert(ctx context.Context, p InsertParams) (Row, error) {
	query := `INSERT INTO incidents (installation_id, reporter_username, note, time_adjustment_seconds, severity, source)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + incidentColumns
	row := s.dbtx.QueryRow(ctx, query,
		p.InstallationID, p.ReporterUsername, p.Note,
		p.TimeAdjustmentSeconds, p.Severity, p.Source,
	)
	return scanRow(row)
}

// ListByInstallation returns incidents newest first.
func (s *Store) ListByInstallation(ctx context.Context, installationID int64) ([]Row, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
	WHERE installation_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.dbtx.Query(ctx, query, installationID)
	if err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.InstallationID, &r.ReporterUsername, &r.Note,
			&r.TimeAdjustmentSeconds, &r.Severity, &r.Source, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning incident row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incident rows: %w", err)
	}
	return items, nil
}

// ListPhotosByInstallation returns every photo under the installation's
// incidents, in upload order, via a single joined query.
func (s *Store) ListPhotosByInstallation(ctx context.Context, installationID int64) ([]Photo, error) {
	query := `SELECT p.id, p.incident_id, p.r2_key, p.file_name, p.content_type, p.size_bytes, p.sha256, p.created_at
	FROM incident_photos p
	JOIN incidents i ON i.id = p.incident_id
	WHERE i.installation_id = $1
	ORDER BY p.created_at ASC, p.id ASC`
	rows, err := s.dbtx.Query(ctx, query, installationID)
	if err != nil {
		return nil, fmt.Errorf("listing incident photos: %w", err)
	}
	defer rows.Close()

	var items []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(
			&p.ID, &p.IncidentID, &p.R2Key, &p.FileName,
			&p.ContentType, &p.SizeBytes, &p.SHA256, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning photo row: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating photo rows: %w", err)
	}
	return items, nil
}

// GroupPhotos attaches photos to their incidents, preserving both orders.
func GroupPhotos(incidents []Row, photos []Photo) []WithPhotos {
	byIncident := make(map[int64][]Photo, len(incidents))
	for _, p := range photos {
		byIncident[p.IncidentID] = append(byIncident[p.IncidentID], p)
	}

	out := make([]WithPhotos, 0, len(incidents))
	for _, inc := range incidents {
		ps := byIncident[inc.ID]
		if ps == nil {
			ps = []Photo{}
		}
		out = append(out, WithPhotos{Row: inc, Photos: ps})
	}
	return out
}
