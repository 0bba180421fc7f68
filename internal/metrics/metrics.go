package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_transfers_total",
			Help: "Total number of submitted transfers",
		},
		[]string{"type", "outcome"},
	)

	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_approvals_total",
			Help: "Total number of resolved international transfers",
		},
		[]string{"decision"},
	)

	LoginFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_login_failures_total",
			Help: "Total number of failed or throttled logins",
		},
		[]string{"role", "reason"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payments_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"route", "method", "status"},
	)
)
