package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "layanan"

var (
	once sync.Once

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Backend API requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	apiLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Backend API request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_polls_total",
			Help:      "Booking detail polls by result (applied, stale, error).",
		},
		[]string{"result"},
	)

	searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mitra_searches_total",
			Help:      "Nearby mitra searches by outcome and failure cause.",
		},
		[]string{"outcome", "cause"},
	)

	timerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_timer_events_total",
			Help:      "Service timer lifecycle events.",
		},
		[]string{"event"},
	)

	bridgeState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_bridge_state",
			Help:      "Background dispatch bridge flags (native_present, running).",
		},
		[]string{"flag"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(apiRequests, apiLatency, polls, searches, timerEvents, bridgeState)
	})
}

// ObserveAPI records one backend call.
func ObserveAPI(endpoint, outcome string, seconds float64) {
	apiRequests.WithLabelValues(endpoint, outcome).Inc()
	apiLatency.WithLabelValues(endpoint).Observe(seconds)
}

func IncPoll(result string) {
	polls.WithLabelValues(result).Inc()
}

func IncSearch(outcome, cause string) {
	searches.WithLabelValues(outcome, cause).Inc()
}

func IncTimer(event string) {
	timerEvents.WithLabelValues(event).Inc()
}

func SetBridgeFlag(flag string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	bridgeState.WithLabelValues(flag).Set(v)
}
