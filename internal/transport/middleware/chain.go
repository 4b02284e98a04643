// Package middleware holds the HTTP layers the router composes around
// the API: request ids, access logging, panic recovery, service-token
// authentication, role checks, and rate limiting.
package middleware

import "net/http"

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain combines middleware into one, applied in the order given:
// Chain(RequestID(), Auth(v))(h) runs RequestID first, so everything
// inside the chain logs with the request id already assigned.
func Chain(mws ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			final = mws[i](final)
		}
		return final
	}
}
