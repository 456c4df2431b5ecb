// Prometheus instrumentation for the ops HTTP surface. Labels are chosen to
// keep cardinality bounded: the registered route, not the raw URL, labels
// every series.
package httpops

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// Status is omitted to keep histogram cardinality lower.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of currently processing requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight)
}

// Metrics instruments each request with counters, a latency histogram, and
// an in-flight gauge. When no route matched the raw path labels the series;
// the ops surface is small enough that this stays bounded.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(c.Request.Method, path, status).Inc()
		httpLat.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
