package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OpportunityRefetches counts user-data refetches by trigger.
	OpportunityRefetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_aggregator",
		Name:      "opportunity_refetches_total",
		Help:      "Opportunity user-data refetches by trigger.",
	}, []string{"trigger"})

	// OpportunityFetchErrors counts failed opportunity fetches by kind.
	OpportunityFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_aggregator",
		Name:      "opportunity_fetch_errors_total",
		Help:      "Failed opportunity fetches by kind.",
	}, []string{"kind"})

	// TrackedTxTransitions counts tracking-slot transitions by resulting status.
	TrackedTxTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_aggregator",
		Name:      "tracked_tx_transitions_total",
		Help:      "Ongoing transaction slot transitions by status.",
	}, []string{"status"})

	// FiatRampRequests counts on-ramp gateway calls by outcome.
	FiatRampRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_aggregator",
		Name:      "fiat_ramp_requests_total",
		Help:      "Fiat ramp gateway requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	// PortfolioSyncs counts account reconciliations by outcome.
	PortfolioSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_aggregator",
		Name:      "portfolio_syncs_total",
		Help:      "Portfolio account syncs by outcome.",
	}, []string{"outcome"})

	registerOnce sync.Once
)

// MustRegisterMetrics registers all collectors with the default registry.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			OpportunityRefetches,
			OpportunityFetchErrors,
			TrackedTxTransitions,
			FiatRampRequests,
			PortfolioSyncs,
		)
	})
}
