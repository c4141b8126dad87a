package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ordersSubmittedTotal,
		orderStatusTransitions,
		gatewayRequests,
		gatewayRequestDuration,
		tokenCacheLookups,
	)
}

var (
	ordersSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_submitted_total",
			Help: "Order submissions by result (ok/rejected/transport_error).",
		},
		[]string{"result"},
	)

	orderStatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status writes by new status and source (poll/ipn/cancel).",
		},
		[]string{"status", "source"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Calls to the payment gateway by operation and result.",
		},
		[]string{"op", "result"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of gateway calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"op"},
	)

	tokenCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_cache_lookups_total",
			Help: "Access-token cache lookups by outcome (hit/miss).",
		},
		[]string{"outcome"},
	)
)

func IncOrderSubmitted(result string) {
	ordersSubmittedTotal.WithLabelValues(norm(result)).Inc()
}

func IncOrderTransition(status, source string) {
	orderStatusTransitions.WithLabelValues(norm(status), norm(source)).Inc()
}

func ObserveGatewayRequest(op, result string, seconds float64) {
	gatewayRequests.WithLabelValues(norm(op), norm(result)).Inc()
	gatewayRequestDuration.WithLabelValues(norm(op)).Observe(seconds)
}

func IncTokenCacheLookup(outcome string) {
	tokenCacheLookups.WithLabelValues(norm(outcome)).Inc()
}
