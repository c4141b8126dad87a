package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ipnCallbacksTotal,
		ipnCallbackDuration,
	)
}

var (
	// result: ok|no_order|not_confirmed|internal_error|rate_limited
	// The internal_error branch is the silent-failure path: the callback is
	// still acknowledged, so this counter is the only external evidence.
	ipnCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipn_callbacks_total",
			Help: "IPN callbacks by processing result.",
		},
		[]string{"result"},
	)

	ipnCallbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ipn_callback_duration_seconds",
			Help:    "Duration of IPN callback handling in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)
)

func IncIpnCallback(result string) {
	ipnCallbacksTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveIpnCallback(result string, seconds float64) {
	ipnCallbackDuration.WithLabelValues(norm(result)).Observe(seconds)
}
