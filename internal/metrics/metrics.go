package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Voting and counter metrics
var (
	// VotesTotal counts cast and retract attempts by target kind and outcome
	// (created, already_voted, removed, noop, error).
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_total",
			Help: "Vote operations by target kind and result",
		},
		[]string{"target", "result"},
	)

	CommentsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comments_created_total",
			Help: "Total comments created",
		},
	)

	// CounterFallbacksTotal counts fast-path counter updates that had to be
	// recomputed from source rows.
	CounterFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counter_fallbacks_total",
			Help: "Counter updates that fell back to a recount, by counter",
		},
		[]string{"counter"},
	)

	CounterRepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counter_repairs_total",
			Help: "Post-commit counter repairs by result (repaired, failed)",
		},
		[]string{"result"},
	)

	NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications created by kind",
		},
		[]string{"kind"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP error responses by error type",
		},
		[]string{"type"},
	)
)
