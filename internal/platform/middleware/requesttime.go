package middleware

import (
	"net/http"
	"time"

	"cratekeeper/pkg/requestcontext"
)

// RequestTime captures the current time at the start of the request so that
// every timestamp written within one request agrees, including audit records
// and version bumps.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
