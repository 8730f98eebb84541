// Package recordings hands out upload and download URLs for class recordings
// and accepts provider webhooks that announce a finished recording.
package recordings

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/httperr"
	"github.com/aura-learn/backend/internal/middleware"
	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/policy"
	"github.com/aura-learn/backend/pkg/response"
	"github.com/aura-learn/backend/pkg/storage"
	"github.com/aura-learn/backend/pkg/validation"
)

// ObjectStore is the part of the recordings bucket the handler uses.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	ObjectURL(key string) string
	Delete(ctx context.Context, key string) error
	PresignExpire() time.Duration
}

// Classes checks access to live classes and stores where their recording lives.
type Classes interface {
	Managed(ctx context.Context, caller policy.Caller, id uuid.UUID) (*models.LiveClass, *models.Course, error)
	Viewable(ctx context.Context, caller policy.Caller, id uuid.UUID) (*models.LiveClass, error)
	AttachRecording(ctx context.Context, id uuid.UUID, url, key string) error
}

// UploadURLRequest is the body for POST /live-classes/:id/recording/upload-url.
type UploadURLRequest struct {
	ContentType string `json:"content_type" binding:"omitempty,oneof=video/mp4 video/webm"`
}

// CompleteRequest is the body for POST /live-classes/:id/recording/complete.
type CompleteRequest struct {
	Key string `json:"key" binding:"required"`
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	classes Classes
	store   ObjectStore
	logger  *zap.Logger
}

// NewHandler creates a recordings handler. store may be nil when S3 is not configured.
func NewHandler(classes Classes, store ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{classes: classes, store: store, logger: logger}
}

func (h *Handler) classID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return uuid.Nil, false
	}
	if h.store == nil {
		response.ServiceUnavailable(c, "recording storage not configured")
		return uuid.Nil, false
	}
	return id, true
}

// UploadURL handles POST /live-classes/:id/recording/upload-url. Managers only.
func (h *Handler) UploadURL(c *gin.Context) {
	id, ok := h.classID(c)
	if !ok {
		return
	}
	var req UploadURLRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, validation.Fields(err))
			return
		}
	}
	if req.ContentType == "" {
		req.ContentType = "video/mp4"
	}
	if _, _, err := h.classes.Managed(c.Request.Context(), middleware.Caller(c), id); err != nil {
		httperr.Write(c, h.logger, err, "failed to create upload URL")
		return
	}
	key := storage.RecordingKey(id, uuid.NewString())
	url, err := h.store.PresignUpload(c.Request.Context(), key, req.ContentType)
	if err != nil {
		h.logger.Error("presign recording upload failed", zap.Error(err), zap.String("live_class_id", id.String()))
		response.Internal(c, "failed to create upload URL")
		return
	}
	response.OK(c, gin.H{"upload_url": url, "key": key, "content_type": req.ContentType})
}

// Complete handles POST /live-classes/:id/recording/complete after a direct upload.
func (h *Handler) Complete(c *gin.Context) {
	id, ok := h.classID(c)
	if !ok {
		return
	}
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, validation.Fields(err))
		return
	}
	lc, _, err := h.classes.Managed(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to save recording")
		return
	}
	if !strings.HasPrefix(req.Key, storage.FolderRecordings+"/"+id.String()+"/") {
		response.BadRequest(c, "key does not belong to this live class")
		return
	}
	exists, err := h.store.Exists(c.Request.Context(), req.Key)
	if err != nil {
		h.logger.Error("check recording object failed", zap.Error(err), zap.String("key", req.Key))
		response.Internal(c, "failed to save recording")
		return
	}
	if !exists {
		response.BadRequest(c, "recording has not been uploaded")
		return
	}
	url := h.store.ObjectURL(req.Key)
	if err := h.classes.AttachRecording(c.Request.Context(), id, url, req.Key); err != nil {
		httperr.Write(c, h.logger, err, "failed to save recording")
		return
	}
	if lc.RecordingKey != "" && lc.RecordingKey != req.Key {
		if err := h.store.Delete(c.Request.Context(), lc.RecordingKey); err != nil {
			h.logger.Warn("delete replaced recording failed", zap.Error(err), zap.String("key", lc.RecordingKey))
		}
	}
	response.OKMessage(c, gin.H{"recording_url": url}, "Recording saved")
}

// DownloadURL handles GET /live-classes/:id/recording/download-url for managers and enrolled learners.
func (h *Handler) DownloadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid live class id")
		return
	}
	lc, err := h.classes.Viewable(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		httperr.Write(c, h.logger, err, "failed to create download URL")
		return
	}
	switch {
	case lc.RecordingKey != "" && h.store != nil:
		url, err := h.store.PresignDownload(c.Request.Context(), lc.RecordingKey)
		if err != nil {
			h.logger.Error("presign recording download failed", zap.Error(err), zap.String("live_class_id", id.String()))
			response.Internal(c, "failed to create download URL")
			return
		}
		response.OK(c, gin.H{"download_url": url, "expires_in": int(h.store.PresignExpire().Seconds())})
	case lc.RecordingURL != "":
		// set by hand to an external host; nothing to sign
		response.OK(c, gin.H{"download_url": lc.RecordingURL})
	default:
		response.NotFound(c, "Recording not available")
	}
}
