package shield

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/guildbrand/kit"
)

// BasicAuth requires HTTP basic credentials matching one of users
// (name -> bcrypt hash). An empty map disables the check.
func BasicAuth(users map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(users) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, password, ok := r.BasicAuth()
			hash, known := users[name]
			if !ok || !known || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
				GetLogger(r.Context()).Warn("shield: authentication failed", "user", name)
				w.Header().Set("WWW-Authenticate", `Basic realm="guildbrand"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(kit.WithUser(r.Context(), name)))
		})
	}
}
