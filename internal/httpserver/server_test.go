package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wisbric/driverlog/internal/telemetry"
)

func testServer() *Server {
	reg := telemetry.NewMetricsRegistry()
	return NewServer([]string{"*"}, slog.Default(), nil, nil, reg)
}

func TestUnknownRoute_PlainText404(t *testing.T) {
	s := testServer()

	r := httptest.NewRequest(http.MethodGet, "/no-existe", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w.Body.String() != "Ruta no encontrada." {
		t.Errorf("body = %q, want %q", w.Body.String(), "Ruta no encontrada.")
	}
}

func TestUnknownMethod_PlainText404(t *testing.T) {
	s := testServer()

	r := httptest.NewRequest(http.MethodDelete, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w.Body.String() != "Ruta no encontrada." {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestPreflight_OK(t *testing.T) {
	s := testServer()

	r := httptest.NewRequest(http.MethodOptions, "/installations", nil)
	r.Header.Set("Origin", "https://console.example.com")
	r.Header.Set("Access-Control-Request-Method", "POST")
	r.Header.Set("Access-Control-Request-Headers", "X-API-Token")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestHealth(t *testing.T) {
	s := testServer()

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshaling body: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	if _, ok := body["now"].(string); !ok {
		t.Errorf("now missing or not a string: %v", body["now"])
	}
}

func TestRoot_Metadata(t *testing.T) {
	s := testServer()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshaling body: %v", err)
	}
	if body["service"] != "driverlog" {
		t.Errorf("service = %v", body["service"])
	}
}

func TestRecover_LegacyErrorShape(t *testing.T) {
	s := testServer()
	s.Router.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("algo salio mal")
	})

	r := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshaling body: %v", err)
	}
	if body["error"] != "algo salio mal" {
		t.Errorf(`body["error"] = %q, want panic message`, body["error"])
	}
}

func TestRequestID_Echoed(t *testing.T) {
	s := testServer()

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "req-123")
	}
}
