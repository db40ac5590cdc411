package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

// Metrics records request duration and counts labelled by route template,
// so path ids do not explode label cardinality.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		labels := []string{c.Request.Method, path, strconv.Itoa(status)}

		m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.RequestTotal.WithLabelValues(labels...).Inc()

		switch {
		case status >= 500:
			m.ErrorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case status >= 400:
			m.ErrorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}
