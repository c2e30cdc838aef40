package webuser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/wisbric/driverlog/internal/db"
)

// Store provides database operations for web users.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a web user Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const userColumns = `id, username, password_hash, password_hash_type, role, is_active, created_at, updated_at, last_login_at`

func scanRow(row pgx.Row) (Row, error) {
	var u Row
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.PasswordHashType,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	return u, err
}

// Count returns the number of web users; gates bootstrap.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.dbtx.QueryRow(ctx, `SELECT COUNT(*) FROM web_users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// GetByUsername looks a user up by its lowercased username.
func (s *Store) GetByUsername(ctx context.Context, username string) (Row, error) {
	query := `SELECT ` + userColumns + ` FROM web_users WHERE username = $1`
	return scanRow(s.dbtx.QueryRow(ctx, query, strings.ToLower(username)))
}

// Get returns a single user by ID.
func (s *Store) Get(ctx context.Context, id int64) (Row, error) {
	query := `SELECT ` + userColumns + ` FROM web_users WHERE id = $1`
	return scanRow(s.dbtx.QueryRow(ctx, query, id))
}

// List returns all users ordered by username ascending.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	query := `SELECT ` + userColumns + ` FROM web_users ORDER BY username ASC`
	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		var u Row
		if err := rows.Scan(
			&u.ID, &u.Username, &u.PasswordHash, &u.PasswordHashType,
			&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
		); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return items, nil
}

// CreateParams holds parameters for creating a user. Username is lowercased
// on insert.
type CreateParams struct {
	Username         string
	PasswordHash     string
	PasswordHashType string
	Role             string
	IsActive         bool
}

// Create inserts a new user.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	query := `INSERT INTO web_users (username, password_hash, password_hash_type, role, is_active)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + userColumns
	row := s.dbtx.QueryRow(ctx, query,
		strings.ToLower(p.Username), p.PasswordHash, p.PasswordHashType, p.Role, p.IsActive,
	)
	return scanRow(row)
}

// UpdateRoleActive patches role and/or is_active; nil fields keep the current
// value.
func (s *Store) UpdateRoleActive(ctx context.Context, id int64, role *string, isActive *bool) (Row, error) {
	query := `UPDATE web_users
	SET role = COALESCE($2, role), is_active = COALESCE($3, is_active), updated_at = now()
	WHERE id = $1
	RETURNING ` + userColumns
	return scanRow(s.dbtx.QueryRow(ctx, query, id, role, isActive))
}

// UpdatePassword replaces the hash and its type atomically.
func (s *Store) UpdatePassword(ctx context.Context, id int64, hash, hashType string) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE web_users SET password_hash = $2, password_hash_type = $3, updated_at = now() WHERE id = $1`,
		id, hash, hashType,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// TouchLastLogin stamps last_login_at.
func (s *Store) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE web_users SET last_login_at = now() WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// LookupActive implements auth.UserSource: session tokens stay valid only
// while the referenced user exists and is active.
func (s *Store) LookupActive(ctx context.Context, username string) (string, bool, error) {
	u, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if !u.IsActive {
		return "", false, nil
	}
	return u.Role, true, nil
}
