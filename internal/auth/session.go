package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wisbric/driverlog/internal/crypto"
)

// SessionTTL is the lifetime of a web session token.
const SessionTTL = 8 * time.Hour

// ErrTokenExpired is returned by ValidateToken for structurally valid but
// expired tokens.
var ErrTokenExpired = errors.New("token expired")

// SessionClaims is the payload carried inside a session token.
type SessionClaims struct {
	Scope    string `json:"scope"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// SessionManager mints and validates web session tokens. The wire format is
// base64url(payload JSON) + "." + hex(HMAC-SHA256(payload, secret)) — fixed by
// the console and mobile clients, so tokens are signed directly rather than
// as JWS.
type SessionManager struct {
	secret []byte
	now    func() time.Time
}

// NewSessionManager creates a session manager from the signing secret.
func NewSessionManager(secret string) (*SessionManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret must not be empty")
	}
	return &SessionManager{secret: []byte(secret), now: time.Now}, nil
}

// IssueToken creates a signed session token for the given user.
func (sm *SessionManager) IssueToken(username, role string) (string, error) {
	now := sm.now()
	claims := SessionClaims{
		Scope:    "web",
		Username: username,
		Role:     role,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(SessionTTL).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshaling claims: %w", err)
	}

	sig := crypto.HMACSHA256Hex(sm.secret, payload)
	return crypto.Base64URLEncode(payload) + "." + sig, nil
}

// ValidateToken verifies the signature and expiry and returns the claims.
// The referenced user must still be checked against the store by the caller.
func (sm *SessionManager) ValidateToken(raw string) (*SessionClaims, error) {
	dot := strings.IndexByte(raw, '.')
	if dot < 0 {
		return nil, fmt.Errorf("malformed token")
	}

	payload, err := crypto.Base64URLDecode(raw[:dot])
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	want := crypto.HMACSHA256Hex(sm.secret, payload)
	if !crypto.ConstantTimeEq(raw[dot+1:], want) {
		return nil, fmt.Errorf("signature mismatch")
	}

	var claims SessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshaling claims: %w", err)
	}
	if claims.Scope != "web" {
		return nil, fmt.Errorf("unexpected scope %q", claims.Scope)
	}
	if claims.Expiry <= sm.now().Unix() {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}

// UserSource resolves a username to its current role and active flag, so
// session validation can reject deactivated users and stale role claims.
type UserSource interface {
	LookupActive(ctx context.Context, username string) (role string, ok bool, err error)
}

// SessionMiddleware authenticates /web/* requests with a Bearer session token.
// sm may be nil when WEB_SESSION_SECRET is not configured; every request is
// then rejected with 503.
func SessionMiddleware(sm *SessionManager, users UserSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sm == nil {
				respondErr(w, http.StatusServiceUnavailable, codeFor(http.StatusServiceUnavailable), "WEB_SESSION_SECRET no configurado")
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "bearer token requerido")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			claims, err := sm.ValidateToken(raw)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "sesion expirada")
					return
				}
				logger.Warn("session validation failed", "error", err)
				respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "token invalido")
				return
			}

			role, ok, err := users.LookupActive(r.Context(), claims.Username)
			if err != nil {
				logger.Error("session user lookup", "error", err, "username", claims.Username)
				respondErr(w, http.StatusInternalServerError, codeFor(http.StatusInternalServerError), "error verificando sesion")
				return
			}
			if !ok || role != claims.Role {
				respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "token invalido")
				return
			}

			id := &Identity{Method: MethodSession, Username: claims.Username, Role: role}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}
