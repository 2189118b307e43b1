package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by stage (login|otp) and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodcoord_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"stage", "result"},
	)

	// HelpRequestTransitions counts help request lifecycle events (submit|assign|unassign|status).
	HelpRequestTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodcoord_help_request_transitions_total",
			Help: "Total number of help request lifecycle transitions",
		},
		[]string{"event"},
	)

	// DonationWebhookEvents counts payment webhook deliveries by type and outcome.
	DonationWebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodcoord_donation_webhook_events_total",
			Help: "Total number of payment provider webhook events processed",
		},
		[]string{"type", "result"},
	)

	// InvitationsIssued counts invitations created by invited role.
	InvitationsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodcoord_invitations_issued_total",
			Help: "Total number of invitations issued",
		},
		[]string{"role"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodcoord_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
