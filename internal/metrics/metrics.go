// Package metrics declares the Prometheus collectors shared across services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "creditsettle"

var (
	WebhookOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_outcomes_total",
		Help:      "Provider notifications by provider and outcome.",
	}, []string{"provider", "outcome"})

	Grants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_grants_total",
		Help:      "Credit grant attempts by provider and result.",
	}, []string{"provider", "result"})

	CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_credits_granted_total",
		Help:      "Credits added to accounts by provider.",
	}, []string{"provider"})

	Consumptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_consumptions_total",
		Help:      "Credit consumption attempts by result.",
	}, []string{"result"})

	CheckoutSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_sessions_total",
		Help:      "Checkout sessions by provider and terminal state.",
	}, []string{"provider", "state"})

	SettlementEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_events_total",
		Help:      "Settlement events by sink and result.",
	}, []string{"sink", "result"})

	MediaAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_backend_attempts_total",
		Help:      "Media generation attempts by backend and result.",
	}, []string{"backend", "result"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
