package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"knowledge-ingest-platform/internal/telemetry"
)

// TracingMiddleware starts a server span per request via otelgin.
func TracingMiddleware() gin.HandlerFunc {
	return otelgin.Middleware("knowledge-ingest-platform")
}

// EnrichTrace attaches request identity to the active span so ingestion
// traces can be joined back to the HTTP call that triggered them.
func EnrichTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.url", c.Request.URL.String()),
			attribute.String("http.client_ip", c.ClientIP()),
			attribute.String("request.id", GetRequestID(c)),
		)

		c.Next()

		span.SetAttributes(
			attribute.Int("http.response.status_code", c.Writer.Status()),
			attribute.Int("http.response.size", c.Writer.Size()),
		)
	}
}

// MetricsMiddleware records per-request counters and latency.
func MetricsMiddleware(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		outcome := "success"
		if c.Writer.Status() >= 400 {
			outcome = "error"
		}
		metrics.RecordRequest(c.Request.Method, c.Request.URL.Path, outcome, time.Since(start).Seconds())
	}
}
