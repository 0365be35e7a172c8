package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions       *prometheus.CounterVec
	DecisionLatency prometheus.Histogram
	AuditFailures   prometheus.Counter
}

// New registers collectors on the default registry. Call once per process.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rekamed_access_decisions_total",
			Help: "Gate decisions, labeled by action and outcome",
		}, []string{"action", "outcome"}),
		DecisionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rekamed_access_decision_latency_seconds",
			Help:    "Latency of gate decisions including the audit append",
			Buckets: prometheus.DefBuckets,
		}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rekamed_access_audit_failures_total",
			Help: "Gate decisions whose audit block could not be written",
		}),
	}
}

func (m *Metrics) ObserveDecision(action, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(action, outcome).Inc()
	m.DecisionLatency.Observe(seconds)
}

func (m *Metrics) IncAuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}
