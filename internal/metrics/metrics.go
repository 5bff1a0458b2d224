// Package metrics exports crmdesk counters and gauges in Prometheus format.
//
// Every method is safe to call on a nil *Metrics, so components can take an
// optional exporter without guarding each call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crmdesk"

// Chat outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	chatRequests    *prometheus.CounterVec
	chatDuration    *prometheus.HistogramVec
	providerRetries *prometheus.CounterVec
	handoffs        *prometheus.CounterVec
	modelHealth     *prometheus.GaugeVec
	activeAgents    prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests processed, by agent type and outcome.",
		}, []string{"agent_type", "outcome"}),
		chatDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_duration_seconds",
			Help:      "Time from dispatch to final response.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"agent_type"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Provider calls repeated after a failure.",
		}, []string{"provider"}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_handoffs_total",
			Help:      "Conversations transferred between agents.",
		}, []string{"from", "to"}),
		modelHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_health",
			Help:      "1 when the last probe of the model succeeded, else 0.",
		}, []string{"model"}),
		activeAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_agents",
			Help:      "Number of agents currently accepting conversations.",
		}),
	}
	m.registry.MustRegister(
		m.chatRequests,
		m.chatDuration,
		m.providerRetries,
		m.handoffs,
		m.modelHealth,
		m.activeAgents,
	)
	return m
}

// ObserveChat records one finished chat request.
func (m *Metrics) ObserveChat(agentType string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	m.chatRequests.WithLabelValues(agentType, outcome).Inc()
	m.chatDuration.WithLabelValues(agentType).Observe(d.Seconds())
}

// IncRetry counts a repeated provider call.
func (m *Metrics) IncRetry(provider string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(provider).Inc()
}

// IncHandoff counts a transfer between two agent ids.
func (m *Metrics) IncHandoff(from, to string) {
	if m == nil {
		return
	}
	m.handoffs.WithLabelValues(from, to).Inc()
}

// SetModelHealth replaces the per-model health gauges.
func (m *Metrics) SetModelHealth(models map[string]bool) {
	if m == nil {
		return
	}
	m.modelHealth.Reset()
	for model, ok := range models {
		v := 0.0
		if ok {
			v = 1
		}
		m.modelHealth.WithLabelValues(model).Set(v)
	}
}

// SetActiveAgents sets the active agent gauge.
func (m *Metrics) SetActiveAgents(n int) {
	if m == nil {
		return
	}
	m.activeAgents.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
