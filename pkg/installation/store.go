package installation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wisbric/driverlog/internal/db"
)

// Store provides database operations for installations.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an installation Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// notes and installation_time_seconds are nullable (a PUT with a missing
// field binds NULL); reads coalesce them back to their zero values.
const installationColumns = `id, timestamp, driver_brand, driver_version, status, client_name,
	driver_description, COALESCE(installation_time_seconds, 0), os_info, COALESCE(notes, '')`

// scanRow scans a pgx.Row into a Row.
func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.Timestamp, &r.DriverBrand, &r.DriverVersion, &r.Status,
		&r.ClientName, &r.DriverDescription, &r.InstallationTimeSeconds,
		&r.OSInfo, &r.Notes,
	)
	return r, err
}

// scanRows scans multiple rows into a Row slice.
func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.DriverBrand, &r.DriverVersion, &r.Status,
			&r.ClientName, &r.DriverDescription, &r.InstallationTimeSeconds,
			&r.OSInfo, &r.Notes,
		); err != nil {
			return nil, fmt.Errorf("scanning installation row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating installation rows: %w", err)
	}
	return items, nil
}

// Insert creates an installation and returns the stored row.
func (s *Store) Insert(ctx context.Context, p InsertParams) (Row, error) {
	query := `INSERT INTO installations (timestamp, driver_brand, driver_version, status, client_name,
		driver_description, installation_time_seconds, os_info, notes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING ` + installationColumns
	row := s.dbtx.QueryRow(ctx, query,
		p.Timestamp, p.DriverBrand, p.DriverVersion, p.Status, p.ClientName,
		p.DriverDescription, p.InstallationTimeSeconds, p.OSInfo, p.Notes,
	)
	return scanRow(row)
}

// List returns all installations, newest first.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	query := `SELECT ` + installationColumns + ` FROM installations ORDER BY timestamp DESC`
	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}
	return scanRows(rows)
}

// Get returns a single installation by ID.
func (s *Store) Get(ctx context.Context, id int64) (Row, error) {
	query := `SELECT ` + installationColumns + ` FROM installations WHERE id = $1`
	return scanRow(s.dbtx.QueryRow(ctx, query, id))
}

// UpdateNotesTime updates notes and installation time. Nil values bind SQL
// NULL, clearing the column.
func (s *Store) UpdateNotesTime(ctx context.Context, id int64, notes *string, seconds *int64) (Row, error) {
	query := `UPDATE installations
	SET notes = $2, installation_time_seconds = $3
	WHERE id = $1
	RETURNING ` + installationColumns
	return scanRow(s.dbtx.QueryRow(ctx, query, id, notes, seconds))
}

// Delete removes an installation. Returns pgx.ErrNoRows when absent.
// Incidents and photos are intentionally left in place; their rows keep the
// installation id and photo blobs stay reachable.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM installations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting installation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
