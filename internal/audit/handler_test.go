package audit

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateAuditLog_Validation(t *testing.T) {
	h := NewHandler(slog.Default(), nil)
	router := h.Routes()

	tests := []struct {
		name string
		body string
	}{
		{"missing action", `{"username":"tech01"}`},
		{"invalid JSON", `{bad}`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestWriter_DropsWhenFull(t *testing.T) {
	w := NewWriter(nil, slog.Default())
	// Not started: nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: "test"})
	}
	w.Log(Entry{Action: "dropped"})

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestWriter_LogEnqueues(t *testing.T) {
	w := NewWriter(nil, slog.Default())

	w.Log(Entry{Action: "login", Username: "tech01", Success: true})

	entry := <-w.entries
	if entry.Action != "login" || entry.Username != "tech01" || !entry.Success {
		t.Errorf("entry = %+v", entry)
	}
}
