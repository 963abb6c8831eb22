package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// correlationKey is the gin context key the correlation ID travels under.
const correlationKey = "correlation_id"

// CorrelationHeader is the inbound/outbound correlation ID header.
const CorrelationHeader = "X-Correlation-ID"

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_requests_total",
		Help: "Total HTTP requests by path and status.",
	}, []string{"path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "router_request_duration_seconds",
		Help:    "HTTP request duration by path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
)

// CorrelationID accepts the caller's correlation ID or generates one, and
// echoes it on the response so clients can quote it back.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationKey, id)
		c.Header(CorrelationHeader, id)
		c.Next()
	}
}

// correlationFrom returns the request's correlation ID.
func correlationFrom(c *gin.Context) string {
	if id, ok := c.Get(correlationKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// RequestLogger logs one structured line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"correlation_id", correlationFrom(c))
	}
}

// Metrics records per-request Prometheus counters and latency.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		requestsTotal.WithLabelValues(path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}
