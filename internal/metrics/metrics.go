// Package metrics exposes Prometheus counters for the delegation lifecycle
// and execution routing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DelegationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delegations_created_total",
		Help: "Delegation authorizations issued.",
	})

	DelegationsSigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delegations_signed_total",
		Help: "Signed delegation authorizations stored.",
	})

	DelegationsActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delegations_activated_total",
		Help: "Delegations activated on chain.",
	})

	DelegationsRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delegations_revoked_total",
		Help: "Delegations revoked.",
	})

	// PermissionDenials is labelled by the error code that rejected the
	// meta-transaction (value cap, chain scope, selector permission).
	PermissionDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delegation_permission_denials_total",
		Help: "Meta-transactions rejected by delegation permissions.",
	}, []string{"reason"})

	// PathDecisions is labelled "direct" or "delegated".
	PathDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_path_decisions_total",
		Help: "Execution path recommendations.",
	}, []string{"path"})

	DelegatedExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delegated_executions_total",
		Help: "Delegated meta-transaction executions.",
	}, []string{"status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route pattern and status class.",
	}, []string{"pattern", "status"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
