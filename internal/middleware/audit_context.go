package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// AuditContext captures the client IP and User-Agent so audit log writers
// deeper in the stack can attach them without touching the request.
func AuditContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if ip := clientIP(r); ip != "" {
			ctx = context.WithValue(ctx, clientIPContextKey{}, ip)
		}
		if ua := r.Header.Get("User-Agent"); ua != "" {
			ctx = context.WithValue(ctx, userAgentContextKey{}, ua)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP resolves the original client address, preferring proxy headers
// over RemoteAddr. X-Forwarded-For may carry a chain; the first entry is the
// client.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if net.ParseIP(r.RemoteAddr) != nil {
			return r.RemoteAddr
		}
		return ""
	}
	return host
}

// GetClientIP retrieves the client IP from context
func GetClientIP(ctx context.Context) *string {
	if ip, ok := ctx.Value(clientIPContextKey{}).(string); ok {
		return &ip
	}
	return nil
}

// GetUserAgent retrieves the user agent from context
func GetUserAgent(ctx context.Context) *string {
	if ua, ok := ctx.Value(userAgentContextKey{}).(string); ok {
		return &ua
	}
	return nil
}
