package prometheus

import (
	"github.com/gin-gonic/gin"

	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

// Handler serves the application registry at /metrics.
type Handler struct {
	metrics *metrics.Metrics
}

func New(m *metrics.Metrics) *Handler {
	return &Handler{metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
}
