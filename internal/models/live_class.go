package models

import (
	"time"

	"github.com/google/uuid"
)

// LiveClassStatus is the lifecycle state of a live class.
type LiveClassStatus string

const (
	LiveClassScheduled LiveClassStatus = "SCHEDULED"
	LiveClassLive      LiveClassStatus = "LIVE"
	LiveClassCompleted LiveClassStatus = "COMPLETED"
	LiveClassCancelled LiveClassStatus = "CANCELLED"
)

// liveClassTransitions lists every allowed status change. Anything absent is rejected.
var liveClassTransitions = map[LiveClassStatus][]LiveClassStatus{
	LiveClassScheduled: {LiveClassLive, LiveClassCancelled},
	LiveClassLive:      {LiveClassCompleted},
}

// Valid reports whether s is a known status.
func (s LiveClassStatus) Valid() bool {
	switch s {
	case LiveClassScheduled, LiveClassLive, LiveClassCompleted, LiveClassCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a class in status s may move to next.
// Staying in the same status is not a transition and returns false.
func (s LiveClassStatus) CanTransitionTo(next LiveClassStatus) bool {
	for _, allowed := range liveClassTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s LiveClassStatus) Terminal() bool {
	return len(liveClassTransitions[s]) == 0
}

// MeetingPlatform identifies where the class is hosted.
type MeetingPlatform string

const (
	PlatformZoom       MeetingPlatform = "ZOOM"
	PlatformGoogleMeet MeetingPlatform = "GOOGLE_MEET"
	PlatformWebRTC     MeetingPlatform = "WEBRTC"
)

// Valid reports whether p is a supported platform.
func (p MeetingPlatform) Valid() bool {
	switch p {
	case PlatformZoom, PlatformGoogleMeet, PlatformWebRTC:
		return true
	}
	return false
}

// Duration bounds for a live class, in minutes.
const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 480
)

// LiveClass is a scheduled synchronous session attached to a course.
type LiveClass struct {
	ID              uuid.UUID       `json:"id"`
	CourseID        uuid.UUID       `json:"course_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	DurationMinutes int             `json:"duration_minutes"`
	MeetingLink     string          `json:"meeting_link,omitempty"`
	MeetingPlatform MeetingPlatform `json:"meeting_platform"`
	MaxAttendees    *int            `json:"max_attendees,omitempty"`
	ThumbnailURL    string          `json:"thumbnail_url,omitempty"`
	Status          LiveClassStatus `json:"status"`
	CreatedByID     uuid.UUID       `json:"created_by_id"`
	RecordingURL    string          `json:"recording_url,omitempty"`
	RecordingKey    string          `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EndsAt returns the scheduled end of the class.
func (lc *LiveClass) EndsAt() time.Time {
	return lc.ScheduledAt.Add(time.Duration(lc.DurationMinutes) * time.Minute)
}

// AttendanceCounts summarises attendance for one class.
type AttendanceCounts struct {
	Attendances int `json:"attendances"`
	Active      int `json:"active_attendees"`
}

// LiveClassDetail is a live class with its related records embedded for API responses.
type LiveClassDetail struct {
	LiveClass
	Course       *CourseSummary          `json:"course,omitempty"`
	CreatedBy    *UserSummary            `json:"created_by,omitempty"`
	Attendances  []AttendanceWithLearner `json:"attendances,omitempty"`
	MyAttendance *Attendance             `json:"my_attendance,omitempty"`
	Count        *AttendanceCounts       `json:"_count,omitempty"`
}
