package liveclasses

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/pkg/validation"
)

// CreateRequest is the body for POST /live-classes.
type CreateRequest struct {
	CourseID        string `json:"course_id" binding:"required,uuid"`
	Title           string `json:"title" binding:"required,max=255"`
	Description     string `json:"description"`
	ScheduledAt     string `json:"scheduled_at" binding:"required,datetime=2006-01-02T15:04:05Z07:00"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=15,max=480"`
	MeetingLink     string `json:"meeting_link" binding:"omitempty,url"`
	MeetingPlatform string `json:"meeting_platform" binding:"omitempty,meeting_platform"`
	MaxAttendees    *int   `json:"max_attendees" binding:"omitempty,min=1"`
	ThumbnailURL    string `json:"thumbnail_url" binding:"omitempty,url"`
}

// UpdateRequest is the body for PATCH /live-classes/:id. Absent fields are left unchanged.
type UpdateRequest struct {
	Title           *string `json:"title" binding:"omitempty,max=255"`
	Description     *string `json:"description"`
	ScheduledAt     *string `json:"scheduled_at" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DurationMinutes *int    `json:"duration_minutes" binding:"omitempty,min=15,max=480"`
	MeetingLink     *string `json:"meeting_link" binding:"omitempty,url"`
	MeetingPlatform *string `json:"meeting_platform" binding:"omitempty,meeting_platform"`
	RecordingURL    *string `json:"recording_url" binding:"omitempty,url"`
	Status          *string `json:"status" binding:"omitempty,live_status"`
	MaxAttendees    *int    `json:"max_attendees" binding:"omitempty,min=1"`
	ThumbnailURL    *string `json:"thumbnail_url" binding:"omitempty,url"`
}

// RegisterValidators installs the meeting_platform and live_status binding tags.
func RegisterValidators() error {
	if err := validation.Register("meeting_platform", func(fl validator.FieldLevel) bool {
		return models.MeetingPlatform(fl.Field().String()).Valid()
	}, "must be one of ZOOM, GOOGLE_MEET, WEBRTC"); err != nil {
		return err
	}
	return validation.Register("live_status", func(fl validator.FieldLevel) bool {
		return models.LiveClassStatus(fl.Field().String()).Valid()
	}, "must be one of SCHEDULED, LIVE, COMPLETED, CANCELLED")
}

func (r CreateRequest) input() (CreateInput, error) {
	courseID, err := uuid.Parse(r.CourseID)
	if err != nil {
		return CreateInput{}, models.NewError(models.ErrInvalidInput, "invalid course_id")
	}
	at, err := time.Parse(time.RFC3339, r.ScheduledAt)
	if err != nil {
		return CreateInput{}, models.NewError(models.ErrInvalidInput, "invalid scheduled_at")
	}
	return CreateInput{
		CourseID:        courseID,
		Title:           r.Title,
		Description:     r.Description,
		ScheduledAt:     at,
		DurationMinutes: r.DurationMinutes,
		MeetingLink:     r.MeetingLink,
		MeetingPlatform: models.MeetingPlatform(r.MeetingPlatform),
		MaxAttendees:    r.MaxAttendees,
		ThumbnailURL:    r.ThumbnailURL,
	}, nil
}

func (r UpdateRequest) input() (UpdateInput, error) {
	in := UpdateInput{
		Title:           r.Title,
		Description:     r.Description,
		DurationMinutes: r.DurationMinutes,
		MeetingLink:     r.MeetingLink,
		RecordingURL:    r.RecordingURL,
		MaxAttendees:    r.MaxAttendees,
		ThumbnailURL:    r.ThumbnailURL,
	}
	if r.ScheduledAt != nil {
		at, err := time.Parse(time.RFC3339, *r.ScheduledAt)
		if err != nil {
			return UpdateInput{}, models.NewError(models.ErrInvalidInput, "invalid scheduled_at")
		}
		in.ScheduledAt = &at
	}
	if r.MeetingPlatform != nil {
		p := models.MeetingPlatform(*r.MeetingPlatform)
		in.MeetingPlatform = &p
	}
	if r.Status != nil {
		s := models.LiveClassStatus(*r.Status)
		in.Status = &s
	}
	return in, nil
}
