package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent transitions.
type Metrics struct {
	RequestsCreated    prometheus.Counter
	Transitions        *prometheus.CounterVec
	RejectedDecisions  *prometheus.CounterVec
	TransitionLatency  *prometheus.HistogramVec
	StoreOperationTime *prometheus.HistogramVec
}

// New registers collectors on the default registry. Call once per process.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "rekamed_consent_requests_created_total",
			Help: "Consent requests opened by doctors",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rekamed_consent_transitions_total",
			Help: "Committed consent transitions, labeled by target status",
		}, []string{"status"}),
		RejectedDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rekamed_consent_rejected_decisions_total",
			Help: "Decisions refused before any state change, labeled by error code",
		}, []string{"action", "code"}),
		TransitionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rekamed_consent_transition_latency_seconds",
			Help:    "Latency of consent transitions including the ledger append",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		StoreOperationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rekamed_consent_store_operation_latency_seconds",
			Help:    "Latency of consent store reads",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncCreated() {
	if m == nil {
		return
	}
	m.RequestsCreated.Inc()
}

func (m *Metrics) ObserveTransition(action, status string, seconds float64) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
	m.TransitionLatency.WithLabelValues(action).Observe(seconds)
}

func (m *Metrics) IncRejected(action, code string) {
	if m == nil {
		return
	}
	m.RejectedDecisions.WithLabelValues(action, code).Inc()
}

func (m *Metrics) ObserveStoreOperation(op string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreOperationTime.WithLabelValues(op).Observe(seconds)
}
