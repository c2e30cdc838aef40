package auth

import (
	"encoding/json"
	"net/http"
)

// respondErr writes the service error envelope without importing httpserver
// (httpserver mounts this package's middleware).
func respondErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func codeFor(status int) string {
	if status == http.StatusUnauthorized {
		return "UNAUTHORIZED"
	}
	return "INVALID_REQUEST"
}
