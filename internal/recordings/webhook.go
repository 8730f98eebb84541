package recordings

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/httperr"
	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/pkg/queue"
	"github.com/aura-learn/backend/pkg/response"
	"github.com/aura-learn/backend/pkg/validation"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// RecordingReadyPayload is the body the meeting provider posts when a recording is ready.
type RecordingReadyPayload struct {
	LiveClassID string `json:"live_class_id" binding:"required,uuid"`
	FileURL     string `json:"file_url" binding:"required,url"`
}

// ClassLookup loads a live class.
type ClassLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LiveClass, error)
}

// Enqueuer queues recording imports.
type Enqueuer interface {
	EnqueueRecordingImport(ctx context.Context, payload queue.RecordingImportPayload) (string, error)
}

// WebhookHandler handles recording webhooks from the meeting provider.
type WebhookHandler struct {
	classes ClassLookup
	queue   Enqueuer
	secret  string
	logger  *zap.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret rejects every call.
func NewWebhookHandler(classes ClassLookup, q Enqueuer, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{classes: classes, queue: q, secret: secret, logger: logger}
}

// RecordingReady handles POST /webhooks/recording-ready: checks the shared secret
// and queues a job that copies the file into the recordings bucket.
func (h *WebhookHandler) RecordingReady(c *gin.Context) {
	got := c.GetHeader(SecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		response.Unauthorized(c, "invalid webhook secret")
		return
	}
	var body RecordingReadyPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ValidationFailed(c, validation.Fields(err))
		return
	}
	classID := uuid.MustParse(body.LiveClassID)
	if _, err := h.classes.Get(c.Request.Context(), classID); err != nil {
		httperr.Write(c, h.logger, notFound(err), "failed to process webhook")
		return
	}
	jobID, err := h.queue.EnqueueRecordingImport(c.Request.Context(), queue.RecordingImportPayload{
		LiveClassID: classID,
		SourceURL:   body.FileURL,
	})
	if err != nil {
		h.logger.Error("enqueue recording import failed", zap.Error(err), zap.String("live_class_id", classID.String()))
		response.Internal(c, "failed to enqueue import")
		return
	}
	h.logger.Info("recording_ready webhook accepted", zap.String("live_class_id", classID.String()), zap.String("job_id", jobID))
	c.JSON(http.StatusAccepted, response.Body{Success: true, Data: gin.H{"job_id": jobID, "status": "processing"}})
}

func notFound(err error) error {
	var e *models.Error
	if errors.Is(err, models.ErrNotFound) && !errors.As(err, &e) {
		return models.NewError(models.ErrNotFound, "Live class not found")
	}
	return err
}
