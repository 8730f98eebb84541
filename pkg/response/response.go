package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Body is the standard API response envelope.
type Body struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// OKMessage sends a 200 JSON response with data and a message.
func OKMessage(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data, Message: message})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Message: message})
}

// ValidationFailed sends 400 with the list of rejected fields.
func ValidationFailed(c *gin.Context, errs []FieldError) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Message: "Validation failed", Errors: errs})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Message: message})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Message: message})
}

// NotFound sends 404.
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Message: message})
}

// Conflict sends 409.
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Body{Success: false, Message: message})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Message: message})
}

// Internal sends 500.
func Internal(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Message: message})
}
