package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	rankRequestsTotal        *prometheus.CounterVec
	rankErrorsTotal          *prometheus.CounterVec
	rankFallbackTotal        *prometheus.CounterVec
	rankForcedTotal          *prometheus.CounterVec
	rankSummaryFallbackTotal *prometheus.CounterVec
	rankResults              *prometheus.HistogramVec
	rankDuration             *prometheus.HistogramVec
	rankSkippedChunksTotal   *prometheus.CounterVec

	embedCacheLookupsTotal *prometheus.CounterVec
	breakerState           *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "paa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control.",
		},
		[]string{"service", "reason"},
	)
	rankRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "rank",
			Name:      "requests_total",
			Help:      "Total successful ranking requests.",
		},
		[]string{"service", "endpoint"},
	)
	rankErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "rank",
			Name:      "errors_total",
			Help:      "Ranking requests that failed, by HTTP status class.",
		},
		[]string{"service", "endpoint", "status"},
	)
	rankFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "rank",
			Name:      "fallback_total",
			Help:      "Ranking requests that used a fallback path, by selection reason.",
		},
		[]string{"service", "reason"},
	)
	rankForcedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "rank",
			Name:      "forced_total",
			Help:      "Forced or injected result entries, by override kind.",
		},
		[]string{"service", "kind"},
	)
	rankSummaryFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "rank",
			Name:      "summary_fallback_total",
			Help:      "Ranking requests answered with document summary fallbacks.",
		},
		[]string{"service", "endpoint"},
	)
	rankResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paa",
			Subsystem: "rank",
			Name:      "results",
			Help:      "Distribution of result entries per ranking request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	rankDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paa",
			Subsystem: "rank",
			Name:      "duration_seconds",
			Help:      "Ranking execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	rankSkippedChunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "rank",
			Name:      "skipped_chunks_total",
			Help:      "Candidate chunks skipped for unusable embeddings.",
		},
		[]string{"service"},
	)
	embedCacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paa",
			Subsystem: "embed_cache",
			Name:      "lookups_total",
			Help:      "Embedding cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "paa",
			Subsystem: "dependency",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		rankRequestsTotal,
		rankErrorsTotal,
		rankFallbackTotal,
		rankForcedTotal,
		rankSummaryFallbackTotal,
		rankResults,
		rankDuration,
		rankSkippedChunksTotal,
		embedCacheLookupsTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:                 registry,
		requestTotal:             requestTotal,
		requestDuration:          requestDuration,
		requestInFlight:          requestInFlight,
		rejectedTotal:            rejectedTotal,
		rankRequestsTotal:        rankRequestsTotal,
		rankErrorsTotal:          rankErrorsTotal,
		rankFallbackTotal:        rankFallbackTotal,
		rankForcedTotal:          rankForcedTotal,
		rankSummaryFallbackTotal: rankSummaryFallbackTotal,
		rankResults:              rankResults,
		rankDuration:             rankDuration,
		rankSkippedChunksTotal:   rankSkippedChunksTotal,
		embedCacheLookupsTotal:   embedCacheLookupsTotal,
		breakerState:             breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch path {
	case "/v1/rag/rank", "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}

// RecordRejected counts a request turned away before reaching a handler.
func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.rejectedTotal.WithLabelValues(service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
