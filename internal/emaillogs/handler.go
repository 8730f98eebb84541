package emaillogs

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/httperr"
	"github.com/aura-learn/backend/internal/middleware"
	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/policy"
	"github.com/aura-learn/backend/pkg/response"
)

// Lister reads email logs of a class.
type Lister interface {
	ListByLiveClass(ctx context.Context, classID uuid.UUID) ([]*models.EmailLog, error)
}

// Access checks that the caller manages a class.
type Access interface {
	Managed(ctx context.Context, caller policy.Caller, id uuid.UUID) (*models.LiveClass, *models.Course, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo   Lister
	access Access
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(repo Lister, access Access, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, access: access, logger: logger}
}

// ListByLiveClass handles GET /live-classes/:id/emails.
func (h *Handler) ListByLiveClass(c *gin.Context) {
	classID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	if _, _, err := h.access.Managed(c.Request.Context(), middleware.Caller(c), classID); err != nil {
		httperr.Write(c, h.logger, err, "failed to load email logs")
		return
	}
	logs, err := h.repo.ListByLiveClass(c.Request.Context(), classID)
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err), zap.String("live_class_id", classID.String()))
		response.Internal(c, "failed to load email logs")
		return
	}
	if logs == nil {
		logs = []*models.EmailLog{}
	}
	response.OK(c, logs)
}
