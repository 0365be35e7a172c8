// Package metrics owns the process Prometheus registry. Bounded contexts
// register their own metric structs on it with NewWith.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	BuildInfo    *prometheus.GaugeVec
	WorkerErrors *prometheus.CounterVec
}

// New returns a registry with the Go runtime and process collectors.
func New(version, ledgerBackend string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r := &Registry{
		reg: reg,
		BuildInfo: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "rekamed_build_info",
			Help: "Build and backend information, always 1",
		}, []string{"version", "ledger_backend"}),
		WorkerErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rekamed_worker_errors_total",
			Help: "Background worker exits with an error, by worker",
		}, []string{"worker"}),
	}
	r.BuildInfo.WithLabelValues(version, ledgerBackend).Set(1)
	return r
}

func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Handler serves /metrics for this registry only.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) IncWorkerError(worker string) {
	r.WorkerErrors.WithLabelValues(worker).Inc()
}
