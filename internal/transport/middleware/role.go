package middleware

import (
	"net/http"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
	"github.com/reviewqualitycollector/janeway-rqcplugin/pkg/ctxutil"
)

// RequireRole returns middleware that rejects callers whose token role
// is not in the allowed set. It expects Auth to have run first; a
// request with no caller in context is treated as unauthenticated.
func RequireRole(roles ...domain.ServiceRole) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := ctxutil.CallerFromCtx(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if caller.Role == role.String() {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}
