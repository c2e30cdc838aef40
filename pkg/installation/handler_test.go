package installation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func testRouter() *chi.Mux {
	h := NewHandler(nil, nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/installations", h.Routes())
	return router
}

func TestCreateInstallation_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid JSON", `{bad}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"negative time", `{"installation_time_seconds":-5}`, http.StatusBadRequest},
	}

	router := testRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/installations", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestGetInstallation_InvalidID(t *testing.T) {
	router := testRouter()

	for _, path := range []string{"/installations/abc", "/installations/0", "/installations/-4"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestListInstallations_InvalidDate(t *testing.T) {
	router := testRouter()

	r := httptest.NewRequest(http.MethodGet, "/installations?start_date=notadate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "start_date") {
		t.Errorf("body %q does not name the bad parameter", w.Body.String())
	}
}

func TestUpdateInstallation_InvalidBody(t *testing.T) {
	router := testRouter()

	r := httptest.NewRequest(http.MethodPut, "/installations/7", strings.NewReader(`{"installation_time_seconds":-1}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", w.Code, w.Body.String())
	}
}
