package auth

import "net/http"

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "autenticacion requerida")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware that rejects identities whose role is not in
// the allowed set. Roles are checked by exact match.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "autenticacion requerida")
				return
			}
			if _, ok := set[id.Role]; !ok {
				respondErr(w, http.StatusForbidden, codeFor(http.StatusForbidden), "permisos insuficientes")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
