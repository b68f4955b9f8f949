package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards an endpoint with the configured API token. A
// missing or malformed Authorization header is 403 (no credentials at
// all); a present but wrong token is 401. Comparison is constant time.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusForbidden, "No autenticado",
					"Se requiere header Authorization: Bearer <token>")
				return
			}
			presented := strings.TrimPrefix(header, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "Token de autenticación inválido", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
