package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-grocery/internal/common"
)

// AdminKeyHeader carries the back-office API key.
const AdminKeyHeader = "X-Admin-Key"

// AdminKey guards admin routes with a shared API key. An empty Key rejects
// every request.
type AdminKey struct {
	Key string
}

// Middleware authenticates the request and records the admin actor on the context.
func (a AdminKey) Middleware(next http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(a.Key))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(expected) == 0 {
			common.JSONError(w, http.StatusServiceUnavailable, "ADMIN_DISABLED", "admin api is not configured", nil)
			return
		}
		provided := []byte(strings.TrimSpace(r.Header.Get(AdminKeyHeader)))
		if len(provided) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid admin key", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithActor(r.Context(), "admin")))
	})
}

// BasicAuth protects diagnostic endpoints such as pprof. Empty credentials
// disable the endpoint.
func BasicAuth(user, pass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user == "" || pass == "" {
				http.NotFound(w, r)
				return
			}
			u, p, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="restricted"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
