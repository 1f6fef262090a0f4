package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gallery collectors on their own registry
type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated     prometheus.Counter
	OrderConflicts    prometheus.Counter
	CommissionsOpened prometheus.Counter
	WebhookEvents     *prometheus.CounterVec
	OutboxMessages    *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// New builds and registers every collector
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gallery_orders_created_total",
			Help: "Orders placed with all artworks reserved.",
		}),
		OrderConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gallery_order_conflicts_total",
			Help: "Order attempts rejected because an artwork was no longer available.",
		}),
		CommissionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gallery_commissions_created_total",
			Help: "Commission requests submitted.",
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_webhook_events_total",
			Help: "Payment webhook events by type and result.",
		}, []string{"type", "result"}),
		OutboxMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_outbox_messages_total",
			Help: "Outbox deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrdersCreated,
		m.OrderConflicts,
		m.CommissionsOpened,
		m.WebhookEvents,
		m.OutboxMessages,
		m.RequestDuration,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveWebhook counts one processed webhook event
func (m *Metrics) ObserveWebhook(eventType, result string) {
	m.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

// ObserveOutbox matches the outbox processor observer signature
func (m *Metrics) ObserveOutbox(eventType string, err error) {
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.OutboxMessages.WithLabelValues(eventType, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request latency labelled by the matched route template
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		m.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
