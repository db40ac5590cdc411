package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/service/audit"
)

// AuditRead records successful reads of a medical record. The entity id is
// taken from the named path parameter. Writes are audited by the services.
func AuditRead(recorder audit.Recorder, entityType, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() != http.StatusOK || CurrentUser(c) == nil {
			return
		}
		recorder.Log(c.Request.Context(), Actor(c), model.AuditActionRead, entityType, c.Param(param), map[string]interface{}{
			"path": c.FullPath(),
		})
	}
}
