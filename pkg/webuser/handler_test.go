package webuser

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/driverlog/internal/auth"
)

func publicRouter(t *testing.T, withSessions bool, bootstrapSecret string) *chi.Mux {
	t.Helper()
	var sessions *auth.SessionManager
	if withSessions {
		var err error
		sessions, err = auth.NewSessionManager("clave-de-firma-para-pruebas-web-123456")
		if err != nil {
			t.Fatalf("NewSessionManager: %v", err)
		}
	}
	h := NewHandler(nil, nil, sessions, auth.NewLoginLimiter(nil), bootstrapSecret, nil)
	router := chi.NewRouter()
	router.Mount("/web/auth", h.PublicRoutes())
	return router
}

func TestLogin_NoSessionSecret(t *testing.T) {
	router := publicRouter(t, false, "secreto")

	r := httptest.NewRequest(http.MethodPost, "/web/auth/login", strings.NewReader(`{"username":"a","password":"b"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "WEB_SESSION_SECRET") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestLogin_InvalidBody(t *testing.T) {
	router := publicRouter(t, true, "secreto")

	tests := []string{
		`{}`,
		`{"username":"admin"}`,
		`{"password":"x"}`,
		`{bad}`,
		``,
	}
	for _, body := range tests {
		r := httptest.NewRequest(http.MethodPost, "/web/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestBootstrap_NoBootstrapSecret(t *testing.T) {
	router := publicRouter(t, true, "")

	r := httptest.NewRequest(http.MethodPost, "/web/auth/bootstrap",
		strings.NewReader(`{"bootstrap_secret":"x","username":"root","password":"Instalador#2026"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "WEB_LOGIN_PASSWORD") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestBootstrap_InvalidBody(t *testing.T) {
	router := publicRouter(t, true, "secreto")

	r := httptest.NewRequest(http.MethodPost, "/web/auth/bootstrap", strings.NewReader(`{"username":"root"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", w.Code, w.Body.String())
	}
}

func TestSessionRoutes_RequireAdmin(t *testing.T) {
	h := NewHandler(nil, nil, nil, auth.NewLoginLimiter(nil), "", nil)
	router := chi.NewRouter()

	// Simulate the session middleware having stored a viewer identity.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := &auth.Identity{Method: auth.MethodSession, Username: "vista", Role: auth.RoleViewer}
			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), id)))
		})
	})
	router.Mount("/web/auth", h.SessionRoutes())

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/web/auth/users"},
		{http.MethodPost, "/web/auth/users"},
		{http.MethodPatch, "/web/auth/users/3"},
		{http.MethodPost, "/web/auth/users/3/force-password"},
		{http.MethodPost, "/web/auth/import-users"},
	} {
		r := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", tt.method, tt.path, w.Code)
		}
	}
}

func TestForcePassword_PolicyApplies(t *testing.T) {
	h := NewHandler(nil, nil, nil, auth.NewLoginLimiter(nil), "", nil)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := &auth.Identity{Method: auth.MethodSession, Username: "root", Role: auth.RoleAdmin}
			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), id)))
		})
	})
	router.Mount("/web/auth", h.SessionRoutes())

	r := httptest.NewRequest(http.MethodPost, "/web/auth/users/3/force-password",
		strings.NewReader(`{"new_password":"corta"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "contrasena") {
		t.Errorf("body = %s", w.Body.String())
	}
}
