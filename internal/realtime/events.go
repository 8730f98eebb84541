package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Events pushed to live class rooms.
const (
	EventStatusChanged  = "status_changed"
	EventAttendeeJoined = "attendee_joined"
	EventAttendeeLeft   = "attendee_left"
	EventViewerCount    = "viewer_count"
	EventRecordingReady = "recording_ready"
)

// Publisher fans an event out to everyone watching a live class.
type Publisher interface {
	Publish(liveClassID uuid.UUID, event string, payload interface{})
}

// Nop is a Publisher that drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(uuid.UUID, string, interface{}) {}

// StatusChange is the payload of EventStatusChanged.
type StatusChange struct {
	LiveClassID uuid.UUID `json:"live_class_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	At          time.Time `json:"at"`
}

// AttendeeChange is the payload of EventAttendeeJoined and EventAttendeeLeft.
type AttendeeChange struct {
	LiveClassID  uuid.UUID `json:"live_class_id"`
	LearnerID    uuid.UUID `json:"learner_id"`
	DurationMins *int      `json:"duration_mins,omitempty"`
	At           time.Time `json:"at"`
}

// ViewerCount is the payload of EventViewerCount.
type ViewerCount struct {
	LiveClassID uuid.UUID `json:"live_class_id"`
	Count       int       `json:"count"`
}
