package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "odoo_agent"

// Metrics exposes Prometheus collectors for turns, commands, remote calls
// and rate limiting. A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns          *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	commands       *prometheus.CounterVec
	delegations    *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	remoteCalls    *prometheus.HistogramVec
	remoteRetries  *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	trackedClients prometheus.Gauge
	modelCalls     *prometheus.HistogramVec
	modelFallbacks *prometheus.CounterVec
}

// MustNew constructs the collectors and registers them with reg. It panics
// on registration errors, like promauto.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "turns_total",
			Help:      "Conversational turns handled, by role and outcome.",
		}, []string{"role", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a full turn including model and remote calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "commands_total",
			Help:      "Embedded commands resolved, by outcome.",
		}, []string{"outcome"}),
		delegations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "delegations_total",
			Help:      "Delegation markers handled, by source, target and status.",
		}, []string{"source", "target", "status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Capability calls rejected by the rate limiter.",
		}, []string{"capability"}),
		remoteCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "odoo",
			Name:      "call_duration_seconds",
			Help:      "Remote object store invocations including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		remoteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "odoo",
			Name:      "retries_total",
			Help:      "Remote calls retried after a transient fault.",
		}, []string{"method"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "odoo",
			Name:      "cache_lookups_total",
			Help:      "Read cache lookups, by result.",
		}, []string{"result"}),
		trackedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "tracked_clients",
			Help:      "Client windows held after the last sweep.",
		}),
		modelCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "call_duration_seconds",
			Help:      "Language model completions, by model and status.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"model", "status"}),
		modelFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "fallbacks_total",
			Help:      "Completions rerouted to the fallback model.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		m.turns, m.turnDuration, m.commands, m.delegations, m.rateLimited,
		m.remoteCalls, m.remoteRetries, m.cacheLookups, m.trackedClients,
		m.modelCalls, m.modelFallbacks,
	)
	return m
}

func (m *Metrics) ObserveTurn(role, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(role, outcome).Inc()
	m.turnDuration.WithLabelValues(role).Observe(d.Seconds())
}

func (m *Metrics) IncCommand(outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDelegation(source, target, status string) {
	if m == nil {
		return
	}
	m.delegations.WithLabelValues(source, target, status).Inc()
}

func (m *Metrics) IncRateLimited(capability string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(capability).Inc()
}

func (m *Metrics) ObserveRemoteCall(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(method, status).Observe(d.Seconds())
}

func (m *Metrics) AddRemoteRetries(method string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remoteRetries.WithLabelValues(method).Add(float64(n))
}

func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetTrackedClients(n int) {
	if m == nil {
		return
	}
	m.trackedClients.Set(float64(n))
}

func (m *Metrics) ObserveModelCall(model, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(model, status).Observe(d.Seconds())
}

func (m *Metrics) IncModelFallback(from, to string) {
	if m == nil {
		return
	}
	m.modelFallbacks.WithLabelValues(from, to).Inc()
}
