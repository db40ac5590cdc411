package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rsyarsya/pneuscope/internal/middleware"
	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	Production     bool
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	RateLimit      bool
	RateRPS        float64
	RateBurst      int
}

// Handlers groups the route sets. API handlers are mounted under /api;
// the rest at the root.
type Handlers struct {
	API    []Handler
	Stream Handler
	Health Handler
	Metric Handler
}

type Router struct {
	engine *gin.Engine
}

func NewRouter(handlers Handlers, m *metrics.Metrics, config RouterConfig) *Router {
	if config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.Metrics(m),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig(config.Production)),
		middleware.CORS(config.AllowedOrigins),
	)
	engine.NoRoute(middleware.NoRoute())

	root := engine.Group("")
	if handlers.Health != nil {
		handlers.Health.RegisterRoutes(root)
	}
	if handlers.Metric != nil {
		handlers.Metric.RegisterRoutes(root)
	}
	// The feed is long-lived; it gets neither the request timeout nor the
	// body limit.
	if handlers.Stream != nil {
		handlers.Stream.RegisterRoutes(root)
	}

	api := engine.Group("/api")
	api.Use(
		middleware.ErrorHandler(),
		middleware.Timeout(config.RequestTimeout),
		middleware.SizeLimit(config.MaxBodyBytes),
	)
	if config.RateLimit {
		api.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPS:   config.RateRPS,
			Burst: config.RateBurst,
		}).RateLimit())
	}
	for _, h := range handlers.API {
		h.RegisterRoutes(api)
	}

	return &Router{engine: engine}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
