package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantapi_http_requests_total",
		Help: "HTTP requests by method, path, and status.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantapi_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantapi_webhook_events_total",
		Help: "Stripe webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	InvitationsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenantapi_invitations_issued_total",
		Help: "Invitations created.",
	})

	InvitationsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenantapi_invitations_accepted_total",
		Help: "Invitations accepted.",
	})
)
