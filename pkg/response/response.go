// Package response defines the JSON envelope for the HTTP read surface.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}

// FromAppError maps a taxonomy error onto its HTTP status and code.
func FromAppError(c *gin.Context, err error) {
	appErr := apperr.FromError(err)
	c.JSON(appErr.StatusCode(), Body{Success: false, Error: appErr.Error(), Code: appErr.Code})
}
