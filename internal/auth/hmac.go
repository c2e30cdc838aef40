package auth

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wisbric/driverlog/internal/crypto"
)

// hmacWindow is the accepted clock skew for signed requests.
const hmacWindow = 300 * time.Second

// HMACVerifier authenticates machine-to-machine requests signed with the
// shared API secret. The canonical string is
// METHOD|PATH|TIMESTAMP|sha256hex(body); an empty body hashes to the digest
// of the empty string.
type HMACVerifier struct {
	token  string
	secret string
	logger *slog.Logger
	now    func() time.Time
}

// NewHMACVerifier creates a verifier. Empty token or secret makes every
// request fail with 503 naming the missing variable.
func NewHMACVerifier(token, secret string, logger *slog.Logger) *HMACVerifier {
	return &HMACVerifier{token: token, secret: secret, logger: logger, now: time.Now}
}

// Middleware verifies the three signature headers before passing the request
// on with an HMAC identity. The body is buffered and restored for the handler.
func (v *HMACVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.token == "" || v.secret == "" {
			respondErr(w, http.StatusServiceUnavailable, codeFor(http.StatusServiceUnavailable), "API_TOKEN/API_SECRET no configurados")
			return
		}

		token := r.Header.Get("X-API-Token")
		tsHeader := r.Header.Get("X-Request-Timestamp")
		signature := r.Header.Get("X-Request-Signature")
		if token == "" || tsHeader == "" || signature == "" {
			respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "cabeceras de autenticacion requeridas")
			return
		}

		if !crypto.ConstantTimeEq(token, v.token) {
			respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "Token inválido")
			return
		}

		ts, err := strconv.ParseInt(tsHeader, 10, 64)
		if err != nil {
			respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "timestamp invalido")
			return
		}
		skew := v.now().Unix() - ts
		if skew < 0 {
			skew = -skew
		}
		if skew > int64(hmacWindow.Seconds()) {
			respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "timestamp fuera de ventana")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			v.logger.Error("reading request body for signature", "error", err)
			respondErr(w, http.StatusBadRequest, codeFor(http.StatusBadRequest), "no se pudo leer el cuerpo")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		canonical := r.Method + "|" + r.URL.Path + "|" + tsHeader + "|" + crypto.SHA256Hex(body)
		want := crypto.HMACSHA256Hex([]byte(v.secret), []byte(canonical))
		if !crypto.ConstantTimeEq(signature, want) {
			respondErr(w, http.StatusUnauthorized, codeFor(http.StatusUnauthorized), "firma invalida")
			return
		}

		id := &Identity{Method: MethodHMAC}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}
