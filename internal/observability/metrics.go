package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the API surface, the hourly
// scheduler, and the delivery workers.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	schedulerTicksTotal  *prometheus.CounterVec
	remindersQueuedTotal prometheus.Counter
	remindersSentTotal   prometheus.Counter
	remindersFailedTotal *prometheus.CounterVec
	mailSendDuration     prometheus.Histogram
	workerInflight       prometheus.Gauge
	retryScheduledTotal  prometheus.Counter
	queueDepth           *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		schedulerTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "scheduler_ticks_total",
				Help:      "Total number of scheduler ticks by outcome.",
			},
			[]string{"outcome"},
		),
		remindersQueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "reminders_queued_total",
				Help:      "Total number of reminder jobs enqueued by the scheduler.",
			},
		),
		remindersSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "reminders_sent_total",
				Help:      "Total number of reminder emails delivered successfully.",
			},
		),
		remindersFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "reminders_failed_total",
				Help:      "Total number of reminder jobs that ended in failed state, by reason.",
			},
			[]string{"reason"},
		),
		mailSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "mail_send_duration_seconds",
				Help:      "Mail provider send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "reminder_engine",
				Name:      "worker_inflight",
				Help:      "Current number of jobs being worked by the delivery pool.",
			},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of jobs scheduled for a backoff retry.",
			},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "reminder_engine",
				Name:      "queue_depth",
				Help:      "Current number of delivery jobs per queue state.",
			},
			[]string{"state"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.schedulerTicksTotal,
		m.remindersQueuedTotal,
		m.remindersSentTotal,
		m.remindersFailedTotal,
		m.mailSendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
		m.queueDepth,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncSchedulerTick(outcome string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(outcome))
	if label == "" {
		label = "unknown"
	}
	m.schedulerTicksTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) AddRemindersQueued(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.remindersQueuedTotal.Add(float64(count))
}

func (m *Metrics) IncReminderSent() {
	if m == nil {
		return
	}
	m.remindersSentTotal.Inc()
}

func (m *Metrics) IncReminderFailed(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.remindersFailedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) ObserveMailSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.mailSendDuration.Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func (m *Metrics) SetQueueDepth(state string, depth int64) {
	if m == nil {
		return
	}
	stateLabel := strings.TrimSpace(strings.ToLower(state))
	if stateLabel == "" {
		stateLabel = "unknown"
	}
	m.queueDepth.WithLabelValues(stateLabel).Set(float64(depth))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
