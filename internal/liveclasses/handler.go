package liveclasses

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/httperr"
	"github.com/aura-learn/backend/internal/middleware"
	"github.com/aura-learn/backend/pkg/response"
	"github.com/aura-learn/backend/pkg/validation"
)

// Handler handles live class HTTP endpoints.
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a live class handler.
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger}
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /live-classes (teacher or admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, validation.Fields(err))
		return
	}
	in, err := req.input()
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to create live class")
		return
	}
	lc, err := h.registry.Create(c.Request.Context(), middleware.Caller(c), in)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to create live class")
		return
	}
	response.Created(c, lc)
}

// GetByID handles GET /live-classes/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	lc, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to load live class")
		return
	}
	response.OK(c, lc)
}

// ListByCourse handles GET /live-classes/course/:courseId.
func (h *Handler) ListByCourse(c *gin.Context) {
	courseID, ok := parseID(c, "courseId")
	if !ok {
		return
	}
	list, err := h.registry.ListByCourse(c.Request.Context(), courseID, middleware.Caller(c).ID)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to list live classes")
		return
	}
	response.OK(c, list)
}

// Upcoming handles GET /live-classes/upcoming for the current learner.
func (h *Handler) Upcoming(c *gin.Context) {
	list, err := h.registry.Upcoming(c.Request.Context(), middleware.Caller(c).ID)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to list upcoming live classes")
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /live-classes/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, validation.Fields(err))
		return
	}
	in, err := req.input()
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to update live class")
		return
	}
	lc, err := h.registry.Update(c.Request.Context(), middleware.Caller(c), id, in)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to update live class")
		return
	}
	response.OKMessage(c, lc, "Live class updated successfully")
}

// Delete handles DELETE /live-classes/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.registry.Delete(c.Request.Context(), middleware.Caller(c), id); err != nil {
		httperr.Write(c, h.logger, err, "failed to delete live class")
		return
	}
	response.OKMessage(c, nil, "Live class deleted successfully")
}

// Attendees handles GET /live-classes/:id/attendees.
func (h *Handler) Attendees(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.registry.Attendees(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to list attendees")
		return
	}
	response.OK(c, list)
}
