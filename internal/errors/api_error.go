// Package errors defines the standardized error response shape of the HTTP
// surface.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the uniform error body for all non-success responses.
type APIError struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates an APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{Error: message, Details: details}
}

// AbortWithBadRequest sends a 400 response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewAPIError(message, details))
}

// AbortWithNotFound sends a 404 response and aborts the request.
func AbortWithNotFound(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusNotFound, NewAPIError(message, details))
}

// AbortWithConflict sends a 409 response and aborts the request.
func AbortWithConflict(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusConflict, NewAPIError(message, details))
}

// AbortWithInternal sends a 500 response and aborts the request.
func AbortWithInternal(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewAPIError(message, details))
}

// AbortWithBadGateway sends a 502 response and aborts the request. Used when
// the upstream analysis engine fails or misbehaves.
func AbortWithBadGateway(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusBadGateway, NewAPIError(message, details))
}
