package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization and workflow metrics
	PolicyDecisionsTotal   *prometheus.CounterVec
	ReviewTransitionsTotal *prometheus.CounterVec
	NotificationsTotal     *prometheus.CounterVec

	// Cache metrics
	StatsCacheEventsTotal *prometheus.CounterVec

	// Store metrics
	StoreFaultsTotal  *prometheus.CounterVec
	DBConnectionsOpen prometheus.Gauge
	DBConnectionsIdle prometheus.Gauge
	DBWaitCount       prometheus.Gauge

	// Maintenance metrics
	NotificationsPurgedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitchdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pitchdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pitchdesk_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		PolicyDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitchdesk_policy_decisions_total",
				Help: "Authorization decisions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		ReviewTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitchdesk_review_transitions_total",
				Help: "Committed project status transitions",
			},
			[]string{"from", "to"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitchdesk_notifications_total",
				Help: "Notification writes by recipient kind and result",
			},
			[]string{"kind", "result"},
		),

		StatsCacheEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitchdesk_stats_cache_events_total",
				Help: "Dashboard stats cache hits, misses and errors",
			},
			[]string{"event"},
		),

		StoreFaultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitchdesk_store_faults_total",
				Help: "Relational store faults by operation and kind",
			},
			[]string{"operation", "fault"},
		),
		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pitchdesk_db_connections_open",
			Help: "Open database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pitchdesk_db_connections_idle",
			Help: "Idle database connections",
		}),
		DBWaitCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pitchdesk_db_wait_count",
			Help: "Total connections waited for",
		}),

		NotificationsPurgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitchdesk_notifications_purged_total",
			Help: "Read notifications deleted by the retention job",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.PolicyDecisionsTotal,
		m.ReviewTransitionsTotal,
		m.NotificationsTotal,
		m.StatsCacheEventsTotal,
		m.StoreFaultsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsIdle,
		m.DBWaitCount,
		m.NotificationsPurgedTotal,
	)

	return m
}

// ObservePolicyDecision counts one decision. Denials are labelled by reason.
func (m *Metrics) ObservePolicyDecision(action string, allowed bool, reason string) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied_" + reason
	}
	m.PolicyDecisionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveTransition counts one committed status change
func (m *Metrics) ObserveTransition(from, to string) {
	m.ReviewTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveNotification counts one notification write
func (m *Metrics) ObserveNotification(kind string, err error) {
	result := "created"
	if err != nil {
		result = "failed"
	}
	m.NotificationsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveCacheEvent counts a stats cache event
func (m *Metrics) ObserveCacheEvent(event string) {
	m.StatsCacheEventsTotal.WithLabelValues(event).Inc()
}

// ObserveStoreFault counts a classified store fault
func (m *Metrics) ObserveStoreFault(operation, fault string) {
	m.StoreFaultsTotal.WithLabelValues(operation, fault).Inc()
}

// UpdateDBStats copies connection pool stats into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched route template so ids do not explode label
// cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It must run inside the router so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
