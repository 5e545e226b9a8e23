// File: internal/observability/metrics.go
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "taskpilot"

// Metrics records engine activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	cycles     *prometheus.CounterVec
	candidates *prometheus.CounterVec
	routes     *prometheus.CounterVec
	rewards    *prometheus.CounterVec
	coins      *prometheus.CounterVec
	scrolls    *prometheus.CounterVec
	parked     prometheus.Gauge
	panics     prometheus.Counter
}

// NewMetrics registers the engine metrics on a dedicated registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry allows tests to provide their own registry.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Snapshot cycles processed, by outcome",
		}, []string{"outcome"}),
		candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "detect",
			Name:      "candidates_total",
			Help:      "Candidates surviving merge, by detection channel and kind",
		}, []string{"channel", "kind"}),
		routes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "router",
			Name:      "routes_total",
			Help:      "Routed candidates, by policy and terminal state",
		}, []string{"policy", "state"}),
		rewards: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reward",
			Name:      "events_total",
			Help:      "Reward events credited, by origin",
		}, []string{"origin"}),
		coins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reward",
			Name:      "coins_total",
			Help:      "Sum of credited amounts, by origin",
		}, []string{"origin"}),
		scrolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "throttle",
			Name:      "fallback_scrolls_total",
			Help:      "Fallback scroll requests, by result (fired or throttled)",
		}, []string{"result"}),
		parked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "verify",
			Name:      "parked_rewards",
			Help:      "Rewards waiting for a completion marker",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "recovered_panics_total",
			Help:      "Panics recovered at the cycle boundary",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCycle counts a finished cycle.
func (m *Metrics) ObserveCycle(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

// ObserveCandidate counts one merged candidate.
func (m *Metrics) ObserveCandidate(channel, kind string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(channel, kind).Inc()
}

// ObserveRoute counts a routed candidate reaching a terminal state.
func (m *Metrics) ObserveRoute(policy, state string) {
	if m == nil {
		return
	}
	if policy == "" {
		policy = "none"
	}
	m.routes.WithLabelValues(policy, state).Inc()
}

// ObserveReward counts a credited reward.
func (m *Metrics) ObserveReward(origin string, amount int) {
	if m == nil {
		return
	}
	m.rewards.WithLabelValues(origin).Inc()
	m.coins.WithLabelValues(origin).Add(float64(amount))
}

// ObserveScroll counts a fallback scroll request.
func (m *Metrics) ObserveScroll(fired bool) {
	if m == nil {
		return
	}
	result := "throttled"
	if fired {
		result = "fired"
	}
	m.scrolls.WithLabelValues(result).Inc()
}

// SetParked reports the size of the deferred reward queue.
func (m *Metrics) SetParked(n int) {
	if m == nil {
		return
	}
	m.parked.Set(float64(n))
}

// ObservePanic counts a recovered panic.
func (m *Metrics) ObservePanic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}
