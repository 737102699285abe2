package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// bodySizeBuckets cover ops API responses up to the webhook body limit
var bodySizeBuckets = []float64{128, 512, 2048, 8192, 32768, 131072, 524288, 1048576, 4194304}

type routeMetrics struct {
	requests     *telemetry.Counter
	duration     *telemetry.Histogram
	requestSize  *telemetry.Histogram
	responseSize *telemetry.Histogram
	inFlight     metric.Int64UpDownCounter
}

func newRouteMetrics(meter metric.Meter) (*routeMetrics, error) {
	m := &routeMetrics{}
	var err error

	if m.requests, err = telemetry.NewCounter(meter, "http_server_request_total",
		"HTTP requests by route, status and platform", "{request}"); err != nil {
		return nil, err
	}
	if m.duration, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.requestSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "Declared request body size",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	}); err != nil {
		return nil, err
	}
	if m.responseSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "Response body size",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	}); err != nil {
		return nil, err
	}
	m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Requests being served"), metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPMetrics records request count, latency and body sizes per route
// pattern. Webhook routes add the platform the handler resolved. A nil meter
// disables collection.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	if meter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	m, err := newRouteMetrics(meter)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		methodAttr := telemetry.AttrHTTPMethod.String(c.Request.Method)
		m.inFlight.Add(c.Request.Context(), 1, metric.WithAttributes(methodAttr))
		defer m.inFlight.Add(c.Request.Context(), -1, metric.WithAttributes(methodAttr))

		c.Next()
		m.observe(c, start)
	}
}

func (m *routeMetrics) observe(c *gin.Context, start time.Time) {
	ctx := c.Request.Context()
	attrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(c.Request.Method),
		telemetry.AttrHTTPRoute.String(getRoutePattern(c)),
	}
	if platform := platformLabel(c); platform != "" {
		attrs = append(attrs, telemetry.AttrPlatform.String(platform))
	}

	m.requests.Inc(ctx, append(attrs, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))...)
	m.duration.RecordDuration(ctx, time.Since(start), attrs...)
	if n := c.Request.ContentLength; n > 0 {
		m.requestSize.Record(ctx, float64(n), attrs...)
	}
	if n := c.Writer.Size(); n > 0 {
		m.responseSize.Record(ctx, float64(n), attrs...)
	}
}

// getRoutePattern returns the matched pattern, e.g. "/webhooks/:platform",
// so raw ids and platform names do not become label values
func getRoutePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

// platformLabel is the platform set by the webhook handler, "unknown" for a
// :platform segment it rejected and empty on other routes
func platformLabel(c *gin.Context) string {
	if c.Param("platform") == "" {
		return ""
	}
	if p := c.GetString(PlatformKey); p != "" {
		return p
	}
	return "unknown"
}
