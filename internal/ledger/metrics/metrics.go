package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the hash-chain ledger.
type Metrics struct {
	BlocksAppended    *prometheus.CounterVec
	AppendLatency     prometheus.Histogram
	ChainHeight       prometheus.Gauge
	VerifyRuns        *prometheus.CounterVec
	VerifyLatency     prometheus.Histogram
	IntegrityFailures prometheus.Counter
	BlocksPublished   prometheus.Counter
	PublishFailures   prometheus.Counter
}

// New registers collectors on the default registry. Call once per process.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers collectors on reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BlocksAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rekamed_ledger_blocks_appended_total",
			Help: "Ledger blocks appended, labeled by event kind",
		}, []string{"kind"}),
		AppendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rekamed_ledger_append_latency_seconds",
			Help:    "Latency of ledger appends including the single-writer lock wait",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ChainHeight: f.NewGauge(prometheus.GaugeOpts{
			Name: "rekamed_ledger_chain_height",
			Help: "block_id of the newest block seen by this process",
		}),
		VerifyRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rekamed_ledger_verify_runs_total",
			Help: "Full-chain verifications, labeled by result",
		}, []string{"result"}),
		VerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rekamed_ledger_verify_latency_seconds",
			Help:    "Duration of full-chain verifications",
			Buckets: prometheus.DefBuckets,
		}),
		IntegrityFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rekamed_ledger_integrity_failures_total",
			Help: "Verifications that found a broken chain",
		}),
		BlocksPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "rekamed_ledger_blocks_published_total",
			Help: "Blocks published to the ledger topic by the tailer",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rekamed_ledger_publish_failures_total",
			Help: "Failed tailer publish attempts",
		}),
	}
}

func (m *Metrics) ObserveAppend(kind string, blockID int64, seconds float64) {
	m.BlocksAppended.WithLabelValues(kind).Inc()
	m.AppendLatency.Observe(seconds)
	m.ChainHeight.Set(float64(blockID))
}

func (m *Metrics) ObserveVerify(ok bool, seconds float64) {
	result := "ok"
	if !ok {
		result = "broken"
		m.IntegrityFailures.Inc()
	}
	m.VerifyRuns.WithLabelValues(result).Inc()
	m.VerifyLatency.Observe(seconds)
}
