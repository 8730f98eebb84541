// Package httperr maps service error kinds onto HTTP responses.
package httperr

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/pkg/response"
)

// Write sends the response for err. Unknown errors are logged and reported as
// internal with fallback as the message.
func Write(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, message(err, "not found"))
	case errors.Is(err, models.ErrPermissionDenied):
		response.Forbidden(c, message(err, "permission denied"))
	case errors.Is(err, models.ErrInvalidState):
		response.BadRequest(c, message(err, "invalid state"))
	case errors.Is(err, models.ErrCapacityExceeded):
		response.Conflict(c, message(err, "capacity exceeded"))
	case errors.Is(err, models.ErrInvalidInput):
		response.BadRequest(c, message(err, "invalid input"))
	default:
		if logger != nil {
			logger.Error(fallback,
				zap.Error(err),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path))
		}
		response.Internal(c, fallback)
	}
}

// message prefers the text of a models.Error over the bare kind.
func message(err error, kind string) string {
	var e *models.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return kind
}
