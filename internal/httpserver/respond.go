package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorDetail is the inner object of the error envelope.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the uniform error envelope for structured failures.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// RespondError writes the error envelope. The code is UNAUTHORIZED for 401
// responses and INVALID_REQUEST for everything else.
func RespondError(w http.ResponseWriter, status int, message string) {
	code := "INVALID_REQUEST"
	if status == http.StatusUnauthorized {
		code = "UNAUTHORIZED"
	}
	Respond(w, status, ErrorResponse{
		Success: false,
		Error:   ErrorDetail{Code: code, Message: message},
	})
}

// RespondNotFoundRoute writes the plain-text body used for unknown routes.
func RespondNotFoundRoute(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Ruta no encontrada."))
}
