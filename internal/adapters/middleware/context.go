package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"gitlab.com/arbiterhq/api/fleet-mod-service/pkg/contextkeys"
)

const requestIDHeaderName = "X-Request-ID"

// RequestIDMiddleware injects a request id into the request context,
// honoring an X-Request-ID header when the caller supplies one, and echoes
// it back on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeaderName)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeaderName, requestID)
		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
