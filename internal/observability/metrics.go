package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/fincore/internal/shared"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	historyFailures *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fincore_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fincore_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fincore_lifecycle_transitions_total",
		Help: "Jumlah transisi status dokumen yang diterima per jenis, aksi dan status tujuan.",
	}, []string{"kind", "action", "to"})
	historyFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fincore_history_write_failures_total",
		Help: "Jumlah kegagalan penulisan riwayat audit atau transisi.",
	}, []string{"record"})
	registry.MustRegister(requests, duration, transitions, historyFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		transitions:     transitions,
		historyFailures: historyFailures,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// InstrumentHistory membungkus HistoryPort sehingga setiap transisi yang
// tercatat ikut dihitung.
func (m *Metrics) InstrumentHistory(next shared.HistoryPort) shared.HistoryPort {
	if m == nil || next == nil {
		return next
	}
	return &instrumentedHistory{next: next, metrics: m}
}

type instrumentedHistory struct {
	next    shared.HistoryPort
	metrics *Metrics
}

func (h *instrumentedHistory) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	err := h.next.RecordAudit(ctx, log)
	if err != nil {
		h.metrics.historyFailures.WithLabelValues("audit").Inc()
	}
	return err
}

func (h *instrumentedHistory) RecordTransition(ctx context.Context, log shared.TransitionLog) error {
	h.metrics.transitions.WithLabelValues(log.Kind, log.Action, log.To).Inc()
	err := h.next.RecordTransition(ctx, log)
	if err != nil {
		h.metrics.historyFailures.WithLabelValues("transition").Inc()
	}
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
