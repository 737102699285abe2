package ecommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

const (
	// maxResponseSize caps response bodies when the config sets no limit
	maxResponseSize = 10 << 20

	minRequestTimeout     = 10 * time.Second
	maxRequestTimeout     = 30 * time.Second
	defaultRequestTimeout = 20 * time.Second
)

// TransportConfig configures the HTTP transport shared by all adapters
type TransportConfig struct {
	// RequestTimeout bounds every marketplace call; clamped to 10-30s
	RequestTimeout time.Duration
	// RateLimitRPS is the sustained request rate per platform; <= 0 disables limiting
	RateLimitRPS float64
	// RateLimitBurst is the limiter burst size
	RateLimitBurst int
	// MaxResponseBytes caps response bodies
	MaxResponseBytes int
	// UserAgent is sent on every request
	UserAgent string
}

// DefaultTransportConfig returns the default transport configuration
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		RequestTimeout:   defaultRequestTimeout,
		RateLimitRPS:     10,
		RateLimitBurst:   5,
		MaxResponseBytes: maxResponseSize,
		UserAgent:        "ordersync/1.0",
	}
}

// normalize applies defaults and bounds
func (c *TransportConfig) normalize() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.RequestTimeout < minRequestTimeout {
		c.RequestTimeout = minRequestTimeout
	}
	if c.RequestTimeout > maxRequestTimeout {
		c.RequestTimeout = maxRequestTimeout
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = maxResponseSize
	}
	if c.UserAgent == "" {
		c.UserAgent = "ordersync/1.0"
	}
}

// apiCall describes one marketplace request
type apiCall struct {
	Method   string
	URL      string
	Endpoint string
	Query    url.Values
	Headers  map[string]string
	Body     []byte
	ShopID   string
}

// Transport executes marketplace requests through a resty client with a
// per-platform rate limiter and response size cap
type Transport struct {
	config   TransportConfig
	client   *resty.Client
	logger   *zap.Logger
	limiters map[integration.Platform]*rate.Limiter
}

// NewTransport creates a transport
func NewTransport(config TransportConfig, logger *zap.Logger) *Transport {
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(config.RequestTimeout).
		SetHeader("User-Agent", config.UserAgent).
		SetHeader("Accept", "application/json")

	t := &Transport{
		config:   config,
		client:   client,
		logger:   logger,
		limiters: make(map[integration.Platform]*rate.Limiter),
	}
	for _, p := range []integration.Platform{
		integration.PlatformShopee, integration.PlatformLazada,
		integration.PlatformTikTok, integration.PlatformLnwShop,
	} {
		t.limiters[p] = t.newLimiter()
	}
	return t
}

func (t *Transport) newLimiter() *rate.Limiter {
	if t.config.RateLimitRPS <= 0 {
		return rate.NewLimiter(rate.Inf, t.config.RateLimitBurst)
	}
	return rate.NewLimiter(rate.Limit(t.config.RateLimitRPS), t.config.RateLimitBurst)
}

// Timeout returns the effective request timeout
func (t *Transport) Timeout() time.Duration {
	return t.config.RequestTimeout
}

// execute performs the call and maps failures:
//   - network errors wrap ErrPlatformUnavailable
//   - 401/403 become *AuthError
//   - other statuses >= 400 become *PlatformAPIError
func (t *Transport) execute(ctx context.Context, platform integration.Platform, call *apiCall) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "marketplace.request",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrPlatform, platform.String()),
		telemetry.WithAttribute(telemetry.SpanAttrShopID, call.ShopID),
		telemetry.WithAttribute(telemetry.SpanAttrEndpoint, call.Endpoint),
	)
	defer span.End()

	body, status, err := t.do(ctx, platform, call)
	if status != 0 {
		telemetry.SetAttribute(span, telemetry.SpanAttrHTTPStatus, status)
	}
	telemetry.RecordError(span, err)
	return body, err
}

func (t *Transport) do(ctx context.Context, platform integration.Platform, call *apiCall) ([]byte, int, error) {
	if limiter, ok := t.limiters[platform]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", integration.ErrPlatformRateLimited, err)
		}
	}

	req := t.client.R().SetContext(ctx)
	if len(call.Query) > 0 {
		req.SetQueryParamsFromValues(call.Query)
	}
	if len(call.Headers) > 0 {
		req.SetHeaders(call.Headers)
	}
	if call.Body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(call.Body)
	}

	start := time.Now()
	resp, err := req.Execute(call.Method, call.URL)
	if err != nil {
		logger.WithLogger(ctx, t.logger).Warn("Marketplace request failed",
			zap.String("platform", platform.String()),
			zap.String("endpoint", call.Endpoint),
			zap.Error(err),
		)
		return nil, 0, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}

	body, status := resp.Body(), resp.StatusCode()
	logger.WithLogger(ctx, t.logger).Debug("Marketplace request completed",
		zap.String("platform", platform.String()),
		zap.String("endpoint", call.Endpoint),
		zap.Int("status", status),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)

	if len(body) > t.config.MaxResponseBytes {
		return nil, status, fmt.Errorf("%w: response exceeds %d bytes", integration.ErrPlatformInvalidResponse, t.config.MaxResponseBytes)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, status, integration.NewAuthError(platform, call.ShopID, fmt.Sprintf("HTTP %d from %s", status, call.Endpoint), nil)
	case status >= 400:
		return nil, status, &integration.PlatformAPIError{
			Platform:   platform,
			Endpoint:   call.Endpoint,
			HTTPStatus: status,
			Message:    truncate(string(body), 256),
		}
	}
	return body, status, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
