package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	AdmissionAdmitted = "admitted"
	AdmissionRejected = "rejected"
	AdmissionError    = "error"
	AdmissionInvalid  = "invalid"

	RollbackApplied       = "applied"
	RollbackRetried       = "retried"
	RollbackReconcile     = "reconciliation_required"
	RollbackTransactional = "transactional"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics owns a private registry so tests and several services in one
// process never collide on the default one. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	admissions        *prometheus.CounterVec
	rollbacks         *prometheus.CounterVec
	calendarCache     *prometheus.CounterVec
	admissionDuration prometheus.Histogram
	requestDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_admissions_total",
		Help: "Admission decisions by outcome",
	}, []string{"outcome"})

	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_rollbacks_total",
		Help: "Compensating decrements by outcome",
	}, []string{"outcome"})

	calendarCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_calendar_cache_total",
		Help: "Month calendar cache lookups by result",
	}, []string{"result"})

	admissionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "capacity_admission_duration_seconds",
		Help:    "Time spent deciding and applying an admission",
		Buckets: prometheus.DefBuckets,
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	registry.MustRegister(
		admissions,
		rollbacks,
		calendarCache,
		admissionDuration,
		requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		admissions:        admissions,
		rollbacks:         rollbacks,
		calendarCache:     calendarCache,
		admissionDuration: admissionDuration,
		requestDuration:   requestDuration,
	}
}

// Registerer lets other packages (the Kafka middleware) add collectors to the
// same registry.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) ObserveAdmission(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
	m.admissionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRollback(outcome string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.calendarCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
