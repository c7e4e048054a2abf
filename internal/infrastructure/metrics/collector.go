// Package metrics exposes Prometheus collectors for the gradebook service.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gradebook"

// Collector holds every service metric.
type Collector struct {
	notifications   *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	handlerFailures *prometheus.CounterVec

	completions     *prometheus.CounterVec
	evaluationTime  prometheus.Histogram
	lockWait        prometheus.Histogram
	alertsRequested *prometheus.CounterVec
	standingChanges *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector registers collectors on reg. Tests pass prometheus.NewRegistry().
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Grade change notifications dispatched, by outcome",
			},
			[]string{"result"},
		),
		handlerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Grade change handler duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"handler"},
		),
		handlerFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_failures_total",
				Help:      "Grade change handler failures",
			},
			[]string{"handler"},
		),
		completions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrollment_completions_total",
				Help:      "Completed enrollments by grading scale and letter",
			},
			[]string{"scale", "letter"},
		),
		evaluationTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "End-to-end enrollment completion duration",
				Buckets:   prometheus.DefBuckets,
			},
		),
		lockWait: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "student_lock_wait_seconds",
				Help:      "Time spent acquiring the per-student lock",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		alertsRequested: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_requested_total",
				Help:      "Academic alerts requested by level and type",
			},
			[]string{"level", "type"},
		),
		standingChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "standing_transitions_total",
				Help:      "Academic standing transitions",
			},
			[]string{"from", "to"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordNotification counts one Notify call.
func (c *Collector) RecordNotification(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.notifications.WithLabelValues(result).Inc()
}

// RecordHandler records one handler invocation.
func (c *Collector) RecordHandler(handler string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.handlerDuration.WithLabelValues(handler).Observe(d.Seconds())
	if err != nil {
		c.handlerFailures.WithLabelValues(handler).Inc()
	}
}

// RecordCompletion records a completed enrollment.
func (c *Collector) RecordCompletion(scale, letter string, d time.Duration) {
	if c == nil {
		return
	}
	c.completions.WithLabelValues(scale, letter).Inc()
	c.evaluationTime.Observe(d.Seconds())
}

// RecordLockWait records lock acquisition time.
func (c *Collector) RecordLockWait(d time.Duration) {
	if c == nil {
		return
	}
	c.lockWait.Observe(d.Seconds())
}

// RecordAlert counts a requested alert.
func (c *Collector) RecordAlert(level, typ string) {
	if c == nil {
		return
	}
	c.alertsRequested.WithLabelValues(level, typ).Inc()
}

// RecordStandingChange counts a standing transition.
func (c *Collector) RecordStandingChange(from, to string) {
	if c == nil {
		return
	}
	c.standingChanges.WithLabelValues(from, to).Inc()
}

// RecordHTTP records one served request.
func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
