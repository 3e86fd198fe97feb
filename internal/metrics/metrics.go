// Package metrics exposes prometheus counters for the gateway's decision
// points. Handlers and the refresher record outcomes here instead of
// branching on logging, keeping observability out of control flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts chat completion requests by final outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "requests_total",
		Help:      "Chat completion requests by outcome.",
	}, []string{"outcome"})

	// SelectorPicks counts successful credential selections.
	SelectorPicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "selector_picks_total",
		Help:      "Successful credential pool selections.",
	})

	// SelectorExhausted counts selections that found no eligible credential.
	SelectorExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "selector_exhausted_total",
		Help:      "Selections that found the pool exhausted.",
	})

	// RefreshOutcomes counts token refresh results by kind.
	RefreshOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "refresh_outcomes_total",
		Help:      "Token refresh outcomes by kind.",
	}, []string{"kind"})

	// UpstreamErrors counts upstream failures by class.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "upstream_errors_total",
		Help:      "Upstream call failures by class.",
	}, []string{"class"})

	// StreamFrames counts outbound stream frames emitted to callers.
	StreamFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "stream_frames_total",
		Help:      "Outbound SSE frames emitted.",
	})

	// RoleAnomalies counts inbound messages whose role needed remapping.
	RoleAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "role_anomalies_total",
		Help:      "Inbound messages with unknown roles remapped to user.",
	})
)
