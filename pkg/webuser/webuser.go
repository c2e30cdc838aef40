package webuser

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// Row is one web_users record. PasswordHash never leaves the package.
type Row struct {
	ID               int64
	Username         string
	PasswordHash     string
	PasswordHashType string
	Role             string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastLoginAt      *time.Time
}

// Response is the public JSON shape for a web user.
type Response struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

// ToResponse converts a Row to its public shape.
func (r *Row) ToResponse() Response {
	return Response{
		ID:          r.ID,
		Username:    r.Username,
		Role:        r.Role,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		LastLoginAt: r.LastLoginAt,
	}
}

// BootstrapRequest is the JSON body for POST /web/auth/bootstrap.
type BootstrapRequest struct {
	BootstrapSecret string `json:"bootstrap_secret" validate:"required"`
	Username        string `json:"username" validate:"required"`
	Password        string `json:"password" validate:"required"`
	Role            string `json:"role"`
}

// LoginRequest is the JSON body for POST /web/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CreateRequest is the JSON body for POST /web/auth/users.
type CreateRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=viewer admin super_admin"`
}

// UpdateRequest is the JSON body for PATCH /web/auth/users/:id.
type UpdateRequest struct {
	Role     *string `json:"role" validate:"omitempty,oneof=viewer admin super_admin"`
	IsActive *bool   `json:"is_active"`
}

// ForcePasswordRequest is the JSON body for POST /web/auth/users/:id/force-password.
type ForcePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

// ImportUser is one entry of POST /web/auth/import-users. Hashes are stored
// verbatim and upgraded to PBKDF2 on the user's first successful login.
type ImportUser struct {
	Username         string `json:"username" validate:"required"`
	PasswordHash     string `json:"password_hash" validate:"required"`
	PasswordHashType string `json:"password_hash_type" validate:"required,oneof=pbkdf2_sha256 bcrypt"`
	Role             string `json:"role" validate:"required,oneof=viewer admin super_admin"`
	IsActive         bool   `json:"is_active"`
}

// ImportRequest is the JSON body for POST /web/auth/import-users.
type ImportRequest struct {
	Users []ImportUser `json:"users" validate:"required,min=1,dive"`
}

// minPasswordLen is the minimum accepted password length.
const minPasswordLen = 10

// ValidatePassword applies the password policy. The error message names each
// missing class so clients can localize.
func ValidatePassword(pw string) error {
	var missing []string
	if len(pw) < minPasswordLen {
		missing = append(missing, "al menos 10 caracteres")
	}

	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if !lower {
		missing = append(missing, "una minuscula")
	}
	if !upper {
		missing = append(missing, "una mayuscula")
	}
	if !digit {
		missing = append(missing, "un numero")
	}
	if !special {
		missing = append(missing, "un caracter especial")
	}

	if len(missing) > 0 {
		return errors.New("la contrasena debe incluir: " + strings.Join(missing, ", "))
	}
	return nil
}
