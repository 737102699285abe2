// Package router assembles the gin engine: the shared middleware chain, the
// versioned ops API and the unversioned endpoints (health, webhook receiver).
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// EngineConfig configures the middleware chain of NewEngine
type EngineConfig struct {
	Mode           string // gin mode: debug, release or test
	Tracing        middleware.TracingConfig
	Meter          metric.Meter
	TrustedProxies []string
}

// NewEngine creates a gin engine with the standard middleware chain. Order
// matters: recovery wraps everything, the request id is assigned before the
// access log, and the span exists before the enricher and metrics run.
func NewEngine(cfg EngineConfig, log *zap.Logger) (*gin.Engine, error) {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.Tracing(cfg.Tracing),
		middleware.SpanEnricher(),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.Secure(),
	)
	middleware.SetupValidator()
	return engine, nil
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
	root       []rootRegistrar
}

type rootRegistrar struct {
	registrar  RouteRegistrar
	middleware []gin.HandlerFunc
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a registrar mounted under /api/<version>
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// RegisterRoot adds a registrar mounted at the engine root, behind its own
// middleware
func (r *Router) RegisterRoot(registrar RouteRegistrar, mw ...gin.HandlerFunc) *Router {
	r.root = append(r.root, rootRegistrar{registrar: registrar, middleware: mw})
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	for _, rr := range r.root {
		group := r.engine.Group("", rr.middleware...)
		rr.registrar.RegisterRoutes(group)
	}

	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// Routes returns "METHOD path" for every registered route
func (r *Router) Routes() []string {
	routes := r.engine.Routes()
	out := make([]string, 0, len(routes))
	for _, route := range routes {
		out = append(out, route.Method+" "+route.Path)
	}
	return out
}
