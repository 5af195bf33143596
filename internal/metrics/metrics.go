package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginTotal counts login attempts by result
	LoginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "racc_session_login_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	// RefreshTotal counts credential refreshes by trigger and result
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "racc_session_refresh_total",
		Help: "Access credential refreshes by trigger and result",
	}, []string{"trigger", "result"})

	// RetryTotal counts requests replayed after a successful refresh
	RetryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "racc_session_retry_total",
		Help: "Requests retried once after an authorization failure",
	})

	// PollDuration tracks incident feed fetch latency
	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "racc_incident_poll_duration_seconds",
		Help:    "Incident feed fetch duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"result"})

	// IncidentsCurrent is the size of the latest incident set
	IncidentsCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "racc_incidents_current",
		Help: "Number of incidents in the latest fetched set",
	})

	// SevereFraction is the severe share of the latest incident set
	SevereFraction = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "racc_incidents_severe_percent",
		Help: "Percentage of incidents at severity 3 or above in the latest set",
	})
)
