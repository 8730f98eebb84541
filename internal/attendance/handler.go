package attendance

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/httperr"
	"github.com/aura-learn/backend/internal/middleware"
	"github.com/aura-learn/backend/pkg/response"
)

// Handler handles join and leave endpoints.
type Handler struct {
	tracker *Tracker
	logger  *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(tracker *Tracker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tracker: tracker, logger: logger}
}

// Join handles POST /live-classes/:id/join.
func (h *Handler) Join(c *gin.Context) {
	classID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	res, err := h.tracker.Join(c.Request.Context(), classID, middleware.Caller(c).ID)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to join live class")
		return
	}
	response.OKMessage(c, res, "Joined live class successfully")
}

// Leave handles POST /live-classes/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	classID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	att, err := h.tracker.Leave(c.Request.Context(), classID, middleware.Caller(c).ID)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to leave live class")
		return
	}
	response.OKMessage(c, att, "Left live class successfully")
}
