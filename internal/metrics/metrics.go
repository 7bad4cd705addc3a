// Package metrics exposes Prometheus collectors for the lead ingestion
// service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	leadSubmissionsTotal       *prometheus.CounterVec
	leadRateLimitRejections    prometheus.Counter
	leadCrmFailuresTotal       *prometheus.CounterVec
	leadNotificationsTotal     *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		leadSubmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgate_submissions_total",
				Help: "Total number of lead submissions processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		leadRateLimitRejections = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadgate_rate_limit_rejections_total",
				Help: "Total number of submissions rejected by the rate limiter.",
			},
		)

		leadCrmFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgate_crm_failures_total",
				Help: "Total number of CRM operation failures, labeled by operation and kind.",
			},
			[]string{"op", "kind"},
		)

		leadNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgate_notifications_total",
				Help: "Total number of notification attempts, labeled by template and status.",
			},
			[]string{"template", "status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSubmission increments the submission counter for the given outcome.
func ObserveSubmission(outcome string) {
	leadSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitRejection counts one rejected admission.
func ObserveRateLimitRejection() {
	leadRateLimitRejections.Inc()
}

// ObserveCrmFailure counts one failed CRM operation.
func ObserveCrmFailure(op, kind string) {
	leadCrmFailuresTotal.WithLabelValues(op, kind).Inc()
}

// ObserveNotification counts one notification attempt.
func ObserveNotification(template string, success bool) {
	status := "failure"
	if success {
		status = "success"
	}
	leadNotificationsTotal.WithLabelValues(template, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
