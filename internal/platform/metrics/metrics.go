package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	AuthRejections  *prometheus.CounterVec
	AuthzDenials    *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	factory promauto.Factory
}

// AuditBuffer is the view of the buffered audit publisher exported as metrics.
type AuditBuffer interface {
	Pending() int
	Dropped() int64
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		factory: factory,
		AuthRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetops_auth_rejections_total",
			Help: "Requests rejected by the authentication gate, by reason",
		}, []string{"reason"}),
		AuthzDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetops_authz_denials_total",
			Help: "Requests denied by an authorization gate, by reason",
		}, []string{"reason"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetops_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter, by route",
		}, []string{"route"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetops_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// IncAuthRejection counts an authentication rejection.
func (m *Metrics) IncAuthRejection(reason string) {
	m.AuthRejections.WithLabelValues(reason).Inc()
}

// IncAuthzDenial counts an authorization denial.
func (m *Metrics) IncAuthzDenial(reason string) {
	m.AuthzDenials.WithLabelValues(reason).Inc()
}

// IncRateLimited counts a throttled request.
func (m *Metrics) IncRateLimited(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}

// ObserveAuditBuffer exports the depth and drop count of b. Call it once
// per registry.
func (m *Metrics) ObserveAuditBuffer(b AuditBuffer) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fleetops_audit_buffer_pending",
		Help: "Audit events waiting to be shipped to the stream",
	}, func() float64 { return float64(b.Pending()) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "fleetops_audit_events_dropped_total",
		Help: "Audit events discarded because the buffer was full",
	}, func() float64 { return float64(b.Dropped()) })
}

// Middleware records request latency labelled by the matched chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
