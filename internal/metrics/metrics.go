// Package metrics provides Prometheus instrumentation for flowauth.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status bucket.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowauth",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flowauth",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysesTotal counts fraud analyses by resulting risk level.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowauth",
			Name:      "analyses_total",
			Help:      "Total fingerprint analyses by risk level.",
		},
		[]string{"level"},
	)

	// RiskScore observes the distribution of computed risk scores.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowauth",
		Name:      "risk_score",
		Help:      "Distribution of fingerprint risk scores.",
		Buckets:   []float64{0, 10, 20, 25, 30, 40, 50, 75, 100},
	})

	// TrustChangesTotal counts trusted-set mutations by operation.
	TrustChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowauth",
			Name:      "trust_changes_total",
			Help:      "Trusted device changes by operation (trust, untrust).",
		},
		[]string{"op"},
	)

	// SessionsTotal counts authentication attempts by outcome.
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowauth",
			Name:      "sessions_total",
			Help:      "Authentication attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// HistorySize tracks the length of the last written fingerprint history.
	HistorySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowauth",
		Name:      "history_size",
		Help:      "Entries in the most recently written fingerprint history.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		RiskScore,
		TrustChangesTotal,
		SessionsTotal,
		HistorySize,
	)
}

// ObserveAnalysis records one completed analysis.
func ObserveAnalysis(level string, score int) {
	AnalysesTotal.WithLabelValues(level).Inc()
	RiskScore.Observe(float64(score))
}

// Middleware returns a fiber middleware that records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		// Route pattern, not the raw path, keeps label cardinality bounded.
		path := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(elapsed.Seconds())
		HTTPRequestsTotal.WithLabelValues(c.Method(), path, statusBucket(status)).Inc()
		return err
	}
}

// Handler returns the Prometheus exposition handler for /metrics.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// statusBucket groups HTTP status codes into 1xx..5xx.
func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
