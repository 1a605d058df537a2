package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/link-wallet/link-wallet/internal/config"
	"github.com/link-wallet/link-wallet/internal/logger"
	"github.com/link-wallet/link-wallet/internal/metrics"
	"github.com/link-wallet/link-wallet/internal/middleware"
	"github.com/link-wallet/link-wallet/internal/storage"
)

// Server represents the HTTP server
type Server struct {
	config      *config.Config
	accounts    AccountService
	graph       IdentityGraph
	delegations DelegationService
	execution   ExecutionService
	audit       AuditStore
	store       *storage.Store
	httpServer  *http.Server
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	accounts AccountService,
	graph IdentityGraph,
	delegations DelegationService,
	execution ExecutionService,
	audit AuditStore,
	store *storage.Store,
) *Server {
	return &Server{
		config:      cfg,
		accounts:    accounts,
		graph:       graph,
		delegations: delegations,
		execution:   execution,
		audit:       audit,
		store:       store,
	}
}

// Handler builds the full middleware and routing stack.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	auth := middleware.NewServiceAuth(s.config.ServiceAPIKeyHash)
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(h)
	}

	// Accounts and profiles
	mux.Handle("POST /v1/accounts/authenticate", protected(s.handleAuthenticateAccount))
	mux.Handle("GET /v1/profiles/{profileID}", protected(s.handleGetProfile))
	mux.Handle("GET /v1/profiles/{profileID}/linked-accounts", protected(s.handleListLinkedAccounts))
	mux.Handle("POST /v1/profiles/{profileID}/linked-accounts", protected(s.handleRegisterLinkedAccount))
	mux.Handle("DELETE /v1/linked-accounts/{linkedAccountID}", protected(s.handleDeactivateLinkedAccount))

	// Identity links
	mux.Handle("POST /v1/links", protected(s.handleCreateLink))
	mux.Handle("PATCH /v1/links", protected(s.handleUpdateLinkPrivacy))
	mux.Handle("DELETE /v1/links", protected(s.handleDeleteLink))
	mux.Handle("GET /v1/accounts/{accountID}/linked", protected(s.handleGetLinkedAccountIDs))
	mux.Handle("GET /v1/accounts/{accountID}/profiles", protected(s.handleGetAccessibleProfiles))
	mux.Handle("GET /v1/accounts/{accountID}/links", protected(s.handleGetLinks))

	// Delegations
	mux.Handle("POST /v1/delegations/authorize", protected(s.handleCreateDelegationAuthorization))
	mux.Handle("POST /v1/delegations", protected(s.handleStoreDelegation))
	mux.Handle("GET /v1/delegations/{delegationID}", protected(s.handleGetDelegation))
	mux.Handle("POST /v1/delegations/{delegationID}/activate", protected(s.handleActivateDelegation))
	mux.Handle("POST /v1/delegations/{delegationID}/revoke", protected(s.handleRevokeDelegation))
	mux.Handle("GET /v1/linked-accounts/{linkedAccountID}/delegations", protected(s.handleListDelegations))

	// Execution routing
	mux.Handle("POST /v1/execution/path", protected(s.handleDetermineExecutionPath))
	mux.Handle("POST /v1/execution/delegated", protected(s.handleExecuteWithDelegation))

	rateLimiter := middleware.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	var handler http.Handler = mux
	handler = rateLimiter.Limit(handler)
	handler = middleware.LimitBody(s.config.MaxBodyBytes)(handler)
	handler = middleware.HTTPMetrics(handler)
	handler = s.loggingMiddleware(handler)
	handler = middleware.AuditContext(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting server", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware logs each request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := middleware.NewStatusRecorder(w)

		next.ServeHTTP(recorder, r)

		slog.Info("request",
			"request_id", logger.GetRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.DB().Ping(ctx); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"detail": "database unreachable",
			})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
