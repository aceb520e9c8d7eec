package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errors           *prometheus.CounterVec
	breaches         *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	scorerFailures   prometheus.Counter
	lockContention   prometheus.Counter
	scanDuration     prometheus.Histogram
	scannedTickets   *prometheus.CounterVec
	autoClosed       prometheus.Counter
	transitionsTotal *prometheus.CounterVec
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "HTTP errors by route, method and error code",
		}, []string{"route", "method", "code"}),
		breaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sla_breaches_total",
			Help: "SLA breaches flagged by deadline",
		}, []string{"deadline"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_escalations_fired_total",
			Help: "Escalation rules fired by trigger and action",
		}, []string{"trigger", "action"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_notifications_total",
			Help: "Notification deliveries by channel and outcome",
		}, []string{"channel", "outcome"}),
		scorerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_red_flag_scorer_failures_total",
			Help: "Red flag scorer calls that failed or timed out",
		}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_ticket_lock_contention_total",
			Help: "Per-ticket lock acquisitions that gave up",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_breach_scan_duration_seconds",
			Help:    "Duration of breach scanner runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		scannedTickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_breach_scan_tickets_total",
			Help: "Tickets processed by the breach scanner by phase and outcome",
		}, []string{"phase", "outcome"}),
		autoClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_tickets_auto_closed_total",
			Help: "Resolved tickets closed after the grace period",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ticket_transitions_total",
			Help: "Accepted status transitions",
		}, []string{"from", "to"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors,
		m.breaches, m.escalations, m.notifications,
		m.scorerFailures, m.lockContention,
		m.scanDuration, m.scannedTickets, m.autoClosed,
		m.transitionsTotal,
	)
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

func (m *Metrics) RecordBreach(deadline string) {
	if m == nil {
		return
	}
	m.breaches.WithLabelValues(deadline).Inc()
}

func (m *Metrics) RecordEscalation(trigger, action string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(trigger, action).Inc()
}

func (m *Metrics) RecordNotification(channel string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) RecordScorerFailure() {
	if m == nil {
		return
	}
	m.scorerFailures.Inc()
}

func (m *Metrics) RecordLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *Metrics) ObserveScan(duration time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordScanned(phase string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.scannedTickets.WithLabelValues(phase, outcome).Inc()
}

func (m *Metrics) RecordAutoClose() {
	if m == nil {
		return
	}
	m.autoClosed.Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}
