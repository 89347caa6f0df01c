package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderdesk"

var (
	// Polls counts reconciliations by trigger (timer, manual) and result
	// (ok, error, dropped, no_session).
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_total",
		Help:      "Order list reconciliations by result.",
	}, []string{"trigger", "result"})

	// PollDuration observes fetch+reconcile latency in milliseconds.
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_ms",
		Help:      "Order list fetch and reconcile latency in milliseconds.",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	// NewOrders counts newly arrived orders in the initial stage.
	NewOrders = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "new_orders_total",
		Help:      "Orders detected as newly arrived in the initial stage.",
	})

	// Transitions counts status mutations by action and result: ok, failed.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Order status mutations by action and result.",
	}, []string{"action", "result"})

	// Rollbacks counts optimistic updates reverted after a failed persist.
	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rollbacks_total",
		Help:      "Optimistic status changes reverted after persist failure.",
	})

	// UnknownStatus counts upstream status values that fell back to new.
	UnknownStatus = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unknown_status_total",
		Help:      "Unrecognized upstream order statuses normalized to new.",
	})

	// ChimeFailures counts notification sinks that failed.
	ChimeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chime_failures_total",
		Help:      "New-order notifications that could not be delivered.",
	})

	// HTTPRequests counts API requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
