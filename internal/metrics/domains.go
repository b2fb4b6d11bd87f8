package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domains_route_decisions_total",
			Help: "Edge routing decisions by kind",
		},
		[]string{"decision"},
	)

	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "domains_resolve_duration_seconds",
			Help:    "Duration of custom domain lookups on the request path",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	VerificationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domains_verification_outcomes_total",
			Help: "Verification check outcomes after transient retries",
		},
		[]string{"outcome"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domains_status_transitions_total",
			Help: "Custom domain status transitions",
		},
		[]string{"from", "to"},
	)

	VerificationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "domains_verifications_in_flight",
			Help: "Verification attempts currently running in this process",
		},
	)

	SkippedTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domains_verification_triggers_skipped_total",
			Help: "Verification triggers dropped because an attempt was already in flight",
		},
		[]string{"scope"},
	)
)
