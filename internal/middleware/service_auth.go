package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type callerAccountContextKey struct{}

// ServiceAuth authenticates the calling service with a bearer API key checked
// against a bcrypt hash. An empty hash disables the check; that mode exists
// for local development only.
type ServiceAuth struct {
	apiKeyHash string
}

// NewServiceAuth creates a new service auth middleware
func NewServiceAuth(apiKeyHash string) *ServiceAuth {
	return &ServiceAuth{apiKeyHash: apiKeyHash}
}

// Authenticate validates the Authorization header and, when present, binds
// the caller account from X-Account-ID into the context. Handlers that need
// a caller identity enforce its presence themselves.
func (m *ServiceAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKeyHash != "" {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				writeJSONError(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(m.apiKeyHash), []byte(token)) != nil {
				writeJSONError(w, "invalid API key", http.StatusUnauthorized)
				return
			}
		}

		ctx := r.Context()
		if raw := r.Header.Get("X-Account-ID"); raw != "" {
			accountID, err := uuid.Parse(raw)
			if err != nil {
				writeJSONError(w, "invalid X-Account-ID header", http.StatusBadRequest)
				return
			}
			ctx = context.WithValue(ctx, callerAccountContextKey{}, accountID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCallerAccount retrieves the authenticated caller account from context.
func GetCallerAccount(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(callerAccountContextKey{}).(uuid.UUID)
	return id, ok
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
