package incident

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
	router.Route("/installations/{id}", func(r chi.Router) {
		r.Mount("/incidents", h.Routes())
	})
	return router
}

func TestCreateIncident_Validation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing note", "/installations/45/incidents", `{"severity":"high"}`},
		{"note too long", "/installations/45/incidents", `{"note":"` + strings.Repeat("a", 5001) + `","severity":"low"}`},
		{"invalid severity", "/installations/45/incidents", `{"note":"Fallo","severity":"urgente"}`},
		{"missing severity", "/installations/45/incidents", `{"note":"Fallo"}`},
		{"invalid source", "/installations/45/incidents", `{"note":"Fallo","severity":"low","source":"fax"}`},
		{"adjustment too low", "/installations/45/incidents", `{"note":"Fallo","severity":"low","time_adjustment_seconds":-86401}`},
		{"adjustment too high", "/installations/45/incidents", `{"note":"Fallo","severity":"low","time_adjustment_seconds":86401}`},
		{"invalid JSON", "/installations/45/incidents", `{bad}`},
		{"empty body", "/installations/45/incidents", ``},
		{"bad installation id", "/installations/cero/incidents", `{"note":"Fallo","severity":"low"}`},
	}

	router := testRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateIncident_BoundaryAdjustmentsAccepted(t *testing.T) {
	// ±86400 is inside the allowed range; these must pass validation and
	// reach the (nil) transaction layer, panicking past the 400 stage.
	for _, adj := range []string{"-86400", "86400"} {
		body := `{"note":"Fallo","severity":"low","time_adjustment_seconds":` + adj + `}`
		r := httptest.NewRequest(http.MethodPost, "/installations/45/incidents", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		func() {
			defer func() { recover() }()
			testRouter().ServeHTTP(w, r)
		}()

		if w.Code == http.StatusBadRequest {
			t.Errorf("adjustment %s rejected: %s", adj, w.Body.String())
		}
	}
}

func TestAppendIncidentNote(t *testing.T) {
	got := appendIncidentNote("nota inicial", "Fallo")
	want := "nota inicial\n[INCIDENT] Fallo"
	if got != want {
		t.Errorf("appendIncidentNote = %q, want %q", got, want)
	}

	if got := appendIncidentNote("", "Fallo"); got != "Fallo" {
		t.Errorf("appendIncidentNote empty = %q, want %q", got, "Fallo")
	}
}

func TestAdjustedSeconds(t *testing.T) {
	tests := []struct {
		current, adjustment, want int64
	}{
		{120, 30, 150},
		{120, -30, 90},
		{120, -300, 0},
		{0, -86400, 0},
		{0, 60, 60},
	}
	for _, tt := range tests {
		if got := adjustedSeconds(tt.current, tt.adjustment); got != tt.want {
			t.Errorf("adjustedSeconds(%d, %d) = %d, want %d", tt.current, tt.adjustment, got, tt.want)
		}
	}
}

func TestGroupPhotos(t *testing.T) {
	incidents := []Row{{ID: 2}, {ID: 1}}
	photos := []Photo{
		{ID: 10, IncidentID: 1},
		{ID: 11, IncidentID: 2},
		{ID: 12, IncidentID: 1},
	}

	got := GroupPhotos(incidents, photos)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != 2 || len(got[0].Photos) != 1 || got[0].Photos[0].ID != 11 {
		t.Errorf("incident 2 grouping wrong: %+v", got[0])
	}
	if got[1].ID != 1 || len(got[1].Photos) != 2 || got[1].Photos[0].ID != 10 || got[1].Photos[1].ID != 12 {
		t.Errorf("incident 1 grouping wrong or order lost: %+v", got[1])
	}
}

func TestGroupPhotos_NoPhotosYieldsEmptySlice(t *testing.T) {
	got := GroupPhotos([]Row{{ID: 1}}, nil)
	if got[0].Photos == nil {
		t.Error("Photos is nil; JSON would render null instead of []")
	}
}
