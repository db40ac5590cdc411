package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rsyarsya/pneuscope/pkg/errors"
)

// Response wraps error responses
type Response struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Errors  []errors.FieldError `json:"errors,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
	Limit   int `json:"limit"`
}

// NewPagination computes the page count for total items split by limit.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{
		Current: page,
		Pages:   pages,
		Total:   total,
		Limit:   limit,
	}
}

// RespondWithSuccess sends body with success=true merged in.
func RespondWithSuccess(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// RespondWithMessage sends a success response carrying only a message.
func RespondWithMessage(c *gin.Context, status int, message string) {
	c.JSON(status, Response{
		Success: true,
		Message: message,
	})
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Message: appErr.Message,
		Errors:  appErr.Fields,
	})
}
