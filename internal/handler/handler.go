// Package handler holds the helpers shared by the HTTP handlers in its
// subpackages.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
	"github.com/rsyarsya/pneuscope/pkg/validator"
)

// BindJSON decodes and validates the request body into req. On failure the
// error response has already been written.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return false
	}
	return true
}

// BindQuery is BindJSON for query strings.
func BindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return false
	}
	return true
}

// ParamID parses the named path parameter as a UUID.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.Validation([]apperrors.FieldError{{
			Field:   name,
			Message: name + " must be a valid id",
		}}))
		return uuid.Nil, false
	}
	return id, true
}
