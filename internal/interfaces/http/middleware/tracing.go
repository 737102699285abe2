package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// TracingConfig configures the server spans
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths get no span; liveness probes would otherwise dominate traces
	SkipPaths []string
}

// DefaultTracingConfig traces everything except the health probe
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "ordersync",
		Enabled:     true,
		SkipPaths:   []string{"/healthz"},
	}
}

// Tracing starts a server span per request, named "METHOD /route/:pattern"
// by otelgin
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	var opts []otelgin.Option
	if len(cfg.SkipPaths) > 0 {
		skip := make(map[string]bool, len(cfg.SkipPaths))
		for _, p := range cfg.SkipPaths {
			skip[p] = true
		}
		opts = append(opts, otelgin.WithFilter(func(r *http.Request) bool {
			return !skip[r.URL.Path]
		}))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanEnricher tags the server span with the request id and, on webhook
// routes, the platform. It must run after Tracing and RequestID.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		attrs := make([]attribute.KeyValue, 0, 2)
		if id := GetRequestID(c); id != "" {
			attrs = append(attrs, attribute.String("request_id", id))
		}
		if platform := c.GetString(PlatformKey); platform != "" {
			attrs = append(attrs, attribute.String(telemetry.SpanAttrPlatform, platform))
		}
		span.SetAttributes(attrs...)

		// 4xx are client mistakes, not server failures
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
