package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testManager(t *testing.T) *SessionManager {
	t.Helper()
	sm, err := NewSessionManager("una-clave-de-firma-suficientemente-larga")
	if err != nil {
		t.Fatalf("NewSessionManager error = %v", err)
	}
	return sm
}

func TestNewSessionManager_EmptySecret(t *testing.T) {
	if _, err := NewSessionManager(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestSessionToken_RoundTrip(t *testing.T) {
	sm := testManager(t)

	token, err := sm.IssueToken("tech01", RoleAdmin)
	if err != nil {
		t.Fatalf("IssueToken error = %v", err)
	}
	if !strings.Contains(token, ".") {
		t.Fatalf("token %q has no signature separator", token)
	}

	claims, err := sm.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken error = %v", err)
	}
	if claims.Username != "tech01" {
		t.Errorf("Username = %q, want %q", claims.Username, "tech01")
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.Scope != "web" {
		t.Errorf("Scope = %q, want %q", claims.Scope, "web")
	}
	if claims.Expiry-claims.IssuedAt != int64(SessionTTL.Seconds()) {
		t.Errorf("lifetime = %d, want %d", claims.Expiry-claims.IssuedAt, int64(SessionTTL.Seconds()))
	}
}

func TestSessionToken_Tampered(t *testing.T) {
	sm := testManager(t)
	token, _ := sm.IssueToken("tech01", RoleViewer)

	// Flip a signature nibble.
	tampered := token[:len(token)-1]
	if strings.HasSuffix(token, "0") {
		tampered += "1"
	} else {
		tampered += "0"
	}
	if _, err := sm.ValidateToken(tampered); err == nil {
		t.Error("tampered signature accepted")
	}

	// Swap the payload while keeping the old signature.
	dot := strings.IndexByte(token, '.')
	other, _ := sm.IssueToken("intruso", RoleSuperAdmin)
	otherDot := strings.IndexByte(other, '.')
	forged := other[:otherDot] + token[dot:]
	if _, err := sm.ValidateToken(forged); err == nil {
		t.Error("forged payload accepted")
	}

	if _, err := sm.ValidateToken("no-dot-token"); err == nil {
		t.Error("malformed token accepted")
	}
}

func TestSessionToken_WrongSecret(t *testing.T) {
	sm := testManager(t)
	token, _ := sm.IssueToken("tech01", RoleViewer)

	other, _ := NewSessionManager("otra-clave-distinta-igual-de-larga-123")
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token verified under a different secret")
	}
}

func TestSessionToken_Expired(t *testing.T) {
	sm := testManager(t)
	token, _ := sm.IssueToken("tech01", RoleViewer)

	sm.now = func() time.Time { return time.Now().Add(SessionTTL + time.Minute) }
	_, err := sm.ValidateToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

// stubUsers implements UserSource for middleware tests.
type stubUsers struct {
	role string
	ok   bool
	err  error
}

func (s stubUsers) LookupActive(_ context.Context, _ string) (string, bool, error) {
	return s.role, s.ok, s.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionMiddleware(t *testing.T) {
	sm := testManager(t)
	logger := slog.Default()

	valid, _ := sm.IssueToken("tech01", RoleAdmin)

	tests := []struct {
		name       string
		header     string
		users      stubUsers
		wantStatus int
	}{
		{
			name:       "valid token, active user",
			header:     "Bearer " + valid,
			users:      stubUsers{role: RoleAdmin, ok: true},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			header:     "",
			users:      stubUsers{role: RoleAdmin, ok: true},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not bearer",
			header:     "Basic abc",
			users:      stubUsers{role: RoleAdmin, ok: true},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			header:     "Bearer abc.def",
			users:      stubUsers{role: RoleAdmin, ok: true},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "deactivated user",
			header:     "Bearer " + valid,
			users:      stubUsers{ok: false},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "role changed since issue",
			header:     "Bearer " + valid,
			users:      stubUsers{role: RoleViewer, ok: true},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := SessionMiddleware(sm, tt.users, logger)
			r := httptest.NewRequest(http.MethodGet, "/web/installations", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			mw(okHandler()).ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestSessionMiddleware_NoSecret(t *testing.T) {
	mw := SessionMiddleware(nil, stubUsers{}, slog.Default())
	r := httptest.NewRequest(http.MethodGet, "/web/installations", nil)
	w := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "WEB_SESSION_SECRET") {
		t.Errorf("body %q does not name the missing variable", w.Body.String())
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if id := FromContext(ctx); id != nil {
		t.Fatalf("expected nil, got %+v", id)
	}

	ctx = NewContext(ctx, &Identity{Method: MethodSession, Username: "tech01", Role: RoleViewer})
	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected identity, got nil")
	}
	if got.Username != "tech01" || got.Role != RoleViewer {
		t.Errorf("identity = %+v", got)
	}
}
