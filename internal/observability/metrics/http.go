package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/usecase"
)

const namespace = "auditor"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	auditTotal          *prometheus.CounterVec
	auditDuration       *prometheus.HistogramVec
	stageDuration       *prometheus.HistogramVec
	retrievedChunks     *prometheus.HistogramVec
	keptChunks          *prometheus.HistogramVec
	lenientKeptTotal    *prometheus.CounterVec
	generationSkipTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	auditTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "queries_total",
			Help:      "Total audit queries by status.",
		},
		[]string{"service", "status"},
	)
	auditDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "duration_seconds",
			Help:      "End-to-end audit query duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage", "status"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "retrieved_chunks",
			Help:      "Chunks returned by retrieval per query.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		},
		[]string{"service"},
	)
	keptChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "graded_chunks",
			Help:      "Chunks kept after grading per query.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		},
		[]string{"service"},
	)
	lenientKeptTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "tabular_lenient_kept_total",
			Help:      "Chunks kept by the tabular override despite a negative verdict.",
		},
		[]string{"service"},
	)
	generationSkipTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "generation_skipped_total",
			Help:      "Queries answered with the fixed non-answer.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		auditTotal,
		auditDuration,
		stageDuration,
		retrievedChunks,
		keptChunks,
		lenientKeptTotal,
		generationSkipTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		service:             service,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		auditTotal:          auditTotal,
		auditDuration:       auditDuration,
		stageDuration:       stageDuration,
		retrievedChunks:     retrievedChunks,
		keptChunks:          keptChunks,
		lenientKeptTotal:    lenientKeptTotal,
		generationSkipTotal: generationSkipTotal,
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

// normalizePath collapses IDs so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/evidence/") && strings.HasSuffix(path, "/overlay"):
		return "/v1/evidence/{chunk_id}/overlay"
	case strings.HasPrefix(path, "/v1/filings/"):
		return "/v1/filings/{filing_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) ObserveStage(stage string, duration time.Duration, err error) {
	m.stageDuration.WithLabelValues(m.service, stage, statusOf(err)).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveAudit(obs usecase.AuditObservation) {
	m.auditTotal.WithLabelValues(m.service, statusOf(obs.Err)).Inc()
	m.auditDuration.WithLabelValues(m.service).Observe(obs.Duration.Seconds())
	if obs.Err != nil {
		return
	}
	m.retrievedChunks.WithLabelValues(m.service).Observe(float64(obs.Retrieved))
	m.keptChunks.WithLabelValues(m.service).Observe(float64(obs.Kept))
	if obs.Lenient > 0 {
		m.lenientKeptTotal.WithLabelValues(m.service).Add(float64(obs.Lenient))
	}
	if obs.GenerationSkipped {
		m.generationSkipTotal.WithLabelValues(m.service).Inc()
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
