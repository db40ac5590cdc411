package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Pinger is implemented by every backing store the API depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handler struct {
	deps    map[string]Pinger
	timeout time.Duration
}

func NewHandler(deps map[string]Pinger) *Handler {
	return &Handler{deps: deps, timeout: 3 * time.Second}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.LivenessCheck)
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadinessCheck pings every dependency concurrently and reports each one.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.deps))
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	checks := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		i, dep := i, h.deps[name]
		g.Go(func() error {
			checks[i] = dep.Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	status, code := "ok", http.StatusOK
	for i, name := range names {
		if checks[i] != nil {
			log.Warn().Err(checks[i]).Str("dependency", name).Msg("Readiness check failed")
			results[name] = "down"
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		results[name] = "up"
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": results,
	})
}
