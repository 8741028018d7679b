package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in one
// process.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	statusCategory  *prometheus.CounterVec

	salesRecorded   prometheus.Counter
	boxesSold       prometheus.Counter
	boxesRestocked  prometheus.Counter
	salesRejected   *prometheus.CounterVec
	returnsRecorded prometheus.Counter
	loginFailures   prometheus.Counter
	lowStockFlavors prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		statusCategory: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_status_category_total",
			Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
		}, []string{"category"}),
		salesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sodaledger_sales_recorded_total",
			Help: "Sales committed to the ledger",
		}),
		boxesSold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sodaledger_boxes_sold_total",
			Help: "Boxes deducted from inventory by sales",
		}),
		boxesRestocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sodaledger_boxes_restocked_total",
			Help: "Boxes added to inventory",
		}),
		salesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sodaledger_sales_rejected_total",
			Help: "Sales rejected before commit, by reason",
		}, []string{"reason"}),
		returnsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sodaledger_returns_recorded_total",
			Help: "Customer returns recorded",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sodaledger_login_failures_total",
			Help: "Rejected login attempts",
		}),
		lowStockFlavors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sodaledger_low_stock_flavors",
			Help: "Active flavors below the low stock threshold at the last overview",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.statusCategory,
		m.salesRecorded,
		m.boxesSold,
		m.boxesRestocked,
		m.salesRejected,
		m.returnsRecorded,
		m.loginFailures,
		m.lowStockFlavors,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The ledger hooks below are no-ops on a nil *Metrics.
func (m *Metrics) SaleRecorded(boxes int) {
	if m == nil {
		return
	}
	m.salesRecorded.Inc()
	m.boxesSold.Add(float64(boxes))
}

func (m *Metrics) SaleRejected(reason string) {
	if m == nil {
		return
	}
	m.salesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Restocked(boxes int) {
	if m == nil {
		return
	}
	m.boxesRestocked.Add(float64(boxes))
}

func (m *Metrics) ReturnRecorded() {
	if m == nil {
		return
	}
	m.returnsRecorded.Inc()
}

func (m *Metrics) LoginFailed() {
	if m == nil {
		return
	}
	m.loginFailures.Inc()
}

func (m *Metrics) SetLowStock(count int) {
	if m == nil {
		return
	}
	m.lowStockFlavors.Set(float64(count))
}

// Middleware records request counts and latency. route maps a request to a
// low-cardinality label.
func (m *Metrics) Middleware(route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		label := route(r)
		m.requests.WithLabelValues(r.Method, label, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, label, status).Observe(time.Since(start).Seconds())
		if category := statusCategory(rec.status); category != "" {
			m.statusCategory.WithLabelValues(category).Inc()
		}
	})
}

func statusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return ""
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
