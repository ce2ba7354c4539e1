// Package observability provides the Prometheus collectors for the turn
// pipeline. Metrics are registered on a caller-supplied registry and
// exposed by the HTTP adapter under /metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ordesk"

// Metrics holds the pipeline collectors. Initialize once at startup via
// NewMetrics; all operations are thread-safe via Prometheus's internal
// locking.
type Metrics struct {
	TurnsTotal          *prometheus.CounterVec
	TurnDurationSeconds prometheus.Histogram
	SupersededTotal     prometheus.Counter
	WindowsReleased     prometheus.Counter
	GuardCorrections    *prometheus.CounterVec
	Escalations         prometheus.Counter
	ProviderCalls       *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	Failovers           *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed turns by final state and outcome.",
		}, []string{"state", "outcome"}),
		TurnDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn processing duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		SupersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debounce_superseded_total",
			Help:      "Debounce waiters resolved as superseded.",
		}),
		WindowsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debounce_windows_released_total",
			Help:      "Debounce windows released downstream.",
		}),
		GuardCorrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_corrections_total",
			Help:      "Transitions repaired by the guard, by reason.",
		}, []string{"reason"}),
		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Turns handed off to a human operator.",
		}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Generation calls by provider and result.",
		}, []string{"provider", "result"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Generation call latency by provider.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"provider"}),
		Failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failovers_total",
			Help:      "Failovers away from a provider.",
		}, []string{"provider"}),
	}

	reg.MustRegister(
		m.TurnsTotal,
		m.TurnDurationSeconds,
		m.SupersededTotal,
		m.WindowsReleased,
		m.GuardCorrections,
		m.Escalations,
		m.ProviderCalls,
		m.ProviderLatency,
		m.Failovers,
	)
	return m
}

// ObserveCall records one provider call outcome.
func (m *Metrics) ObserveCall(providerName string, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ProviderCalls.WithLabelValues(providerName, result).Inc()
	m.ProviderLatency.WithLabelValues(providerName).Observe(elapsed.Seconds())
}
