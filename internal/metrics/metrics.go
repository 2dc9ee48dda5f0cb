package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Issuance outcomes.
const (
	OutcomeFresh  = "fresh"
	OutcomeReused = "reused"
	OutcomeDenied = "denied"
	OutcomeError  = "error"
)

var (
	// Key lifecycle metrics
	KeysIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_keys_issued_total",
			Help: "Issuance requests by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_validations_total",
			Help: "Key validations by result",
		},
		[]string{"result"},
	)

	KeysExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_keys_expired_total",
			Help: "Keys deactivated by the sweeper",
		},
	)

	SweepFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_sweep_failures_total",
			Help: "Per-key failures during sweeps",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_sweep_duration_seconds",
			Help:    "Sweep pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		},
	)

	// Front-end metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_bot_commands_total",
			Help: "Chat commands handled by name and reply kind",
		},
		[]string{"command", "reply"},
	)

	NotificationsFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_notifications_failed_total",
			Help: "Log channel deliveries that failed",
		},
	)
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
