package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
)

// ErrorHandler renders the last error attached with c.Error when the
// handler did not write a response itself.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		for _, e := range c.Errors {
			log.Debug().
				Err(e.Err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Msg("Request error")
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}

// NoRoute answers unknown paths in the standard error shape.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		httputil.RespondWithError(c, apperrors.NotFound("Route", nil))
	}
}
