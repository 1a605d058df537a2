package middleware

import (
	"net/http"
)

// DefaultMaxBodyBytes caps request bodies at 1 MiB.
const DefaultMaxBodyBytes = 1 << 20

// LimitBody caps request body size. A maxBytes of 0 applies
// DefaultMaxBodyBytes.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes == 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
