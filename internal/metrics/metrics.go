// Package metrics exposes the prometheus collectors for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	moneyMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "wallet",
			Name:      "money_movements_total",
			Help:      "Money movements by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		},
		[]string{"job", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		moneyMovements,
		jobRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per matched route.  The
// route template (c.Path()) is used instead of the raw URL to keep label
// cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			method := c.Request().Method
			httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ObserveMoney counts one money movement.  outcome is "ok" or "error".
func ObserveMoney(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	moneyMovements.WithLabelValues(kind, outcome).Inc()
}

// ObserveJob counts one scheduled job run.
func ObserveJob(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	jobRuns.WithLabelValues(job, outcome).Inc()
}
