package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/link-wallet/link-wallet/internal/logger"
)

// RequestID attaches a request ID to the context and echoes it back in the
// X-Request-ID response header. An upstream-provided ID is kept so traces
// stay correlated across the proxy chain.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
