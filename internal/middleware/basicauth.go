package middleware

import (
	"net/http"

	"github.com/dailysend/internal/auth"
)

const basicAuthRealm = `Basic realm="dailysend", charset="UTF-8"`

// BasicAuth requires HTTP basic credentials whose password matches the
// bcrypt hash. Any user name is accepted. An empty hash disables the check.
func BasicAuth(passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if passwordHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, password, ok := r.BasicAuth()
			if !ok || !auth.Verify(passwordHash, password) {
				w.Header().Set("WWW-Authenticate", basicAuthRealm)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
