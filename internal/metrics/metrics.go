// Package metrics exposes prometheus instrumentation for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accounts_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accounts_operation_duration_seconds",
			Help:    "Latency of account operations, including bcrypt work.",
			Buckets: prometheus.LinearBuckets(0.01, 0.05, 10),
		},
		[]string{"operation"},
	)

	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accounts_registrations_total",
		Help: "Accounts created.",
	})

	AuthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accounts_auth_failures_total",
		Help: "Rejected username/password pairs.",
	})

	RoleUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_role_updates_total",
			Help: "Role changes by new role.",
		},
		[]string{"role"},
	)
)

// Instrument starts a timer for operation. Call the returned func when done.
func Instrument(operation string) func() time.Duration {
	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		OperationLatency.WithLabelValues(operation).Observe(v)
	}))
	return timer.ObserveDuration
}

// Middleware records request counts and latency keyed by the matched route
// pattern, so tokens in the path never become label values.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		RequestLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
