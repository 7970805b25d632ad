package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	repairTotal    *prometheus.CounterVec
	repairDuration *prometheus.HistogramVec
	repairInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	repairTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "worker",
			Name:      "chunk_repair_total",
			Help:      "Total chunk embedding-status repairs by status.",
		},
		[]string{"service", "status"},
	)
	repairDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paa",
			Subsystem: "worker",
			Name:      "chunk_repair_duration_seconds",
			Help:      "Chunk repair duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	repairInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "paa",
			Subsystem: "worker",
			Name:      "chunk_repair_in_flight",
			Help:      "Number of in-flight chunk repairs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(repairTotal, repairDuration, repairInFlight)

	return &WorkerMetrics{
		registry:       registry,
		repairTotal:    repairTotal,
		repairDuration: repairDuration,
		repairInFlight: repairInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRepair() {
	m.repairInFlight.Inc()
}

func (m *WorkerMetrics) FinishRepair(service string, duration time.Duration, err error) {
	m.repairInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.repairTotal.WithLabelValues(service, status).Inc()
	m.repairDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
