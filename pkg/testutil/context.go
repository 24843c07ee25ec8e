package testutil

import (
	"net/http"

	id "userdir/pkg/domain"
	"userdir/pkg/requestcontext"
)

// WithPrincipal adds an authenticated user ID and role to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithPrincipal(req *http.Request, userID id.UserID, role string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), userID, role)
	return req.WithContext(ctx)
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// PassThroughAuth stands in for the auth middleware in handler tests: requests
// that already carry a principal pass, anonymous ones get a 401.
func PassThroughAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.UserID(r.Context()).IsZero() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
