package authz

import (
	"net/http"

	"github.com/strategico/tenant-api/internal/models"
)

// RequireRole returns a middleware that ensures the requester holds one of
// the listed roles.
func RequireRole(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromRequest(r)
			if !ok {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			for _, a := range allowed {
				if role == a {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "insufficient permissions", http.StatusForbidden)
		})
	}
}
