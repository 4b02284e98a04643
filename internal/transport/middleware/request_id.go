package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/reviewqualitycollector/janeway-rqcplugin/pkg/ctxutil"
)

// RequestIDHeader is the header carrying the request id, both inbound
// (the host may forward its own) and on every response.
const RequestIDHeader = "X-Request-Id"

// RequestID returns middleware that tags every request with an id,
// reusing the incoming header when the caller already set one.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}
			ctx := ctxutil.WithRequestID(r.Context(), id)
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
