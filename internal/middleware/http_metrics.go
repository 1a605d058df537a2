package middleware

import (
	"net/http"
	"strconv"

	"github.com/link-wallet/link-wallet/internal/metrics"
)

// HTTPMetrics counts requests by route pattern and status class. The pattern
// comes from the ServeMux match so label cardinality stays bounded.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		next.ServeHTTP(recorder, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		status := strconv.Itoa(recorder.StatusCode/100) + "xx"
		metrics.HTTPRequests.WithLabelValues(pattern, status).Inc()
	})
}
