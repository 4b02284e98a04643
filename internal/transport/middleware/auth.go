package middleware

import (
	"net/http"
	"strings"

	"github.com/reviewqualitycollector/janeway-rqcplugin/pkg/ctxutil"
)

type tokenValidator interface {
	ValidateServiceToken(token string) (subject string, role string, err error)
}

// Auth returns middleware that authenticates the calling system by its
// bearer service token and stores the caller in the request context.
// The inbound API has no anonymous routes; requests without a valid
// token never reach a handler.
func Auth(validator tokenValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			subject, role, err := validator.ValidateServiceToken(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := ctxutil.WithCaller(r.Context(), ctxutil.Caller{Subject: subject, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}
