package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Attendance is one learner's participation in one live class.
type Attendance struct {
	ID           uuid.UUID  `json:"id"`
	LiveClassID  uuid.UUID  `json:"live_class_id"`
	LearnerID    uuid.UUID  `json:"learner_id"`
	JoinedAt     *time.Time `json:"joined_at,omitempty"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	DurationMins *int       `json:"duration_mins,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Active reports whether the learner is currently in the class.
func (a *Attendance) Active() bool {
	return a.JoinedAt != nil && a.LeftAt == nil
}

// AttendedMinutes rounds the span between join and leave to whole minutes.
func AttendedMinutes(joinedAt, leftAt time.Time) int {
	d := leftAt.Sub(joinedAt)
	if d < 0 {
		return 0
	}
	return int(math.Round(d.Minutes()))
}

// AttendanceWithLearner is an attendance row with the learner summary attached.
type AttendanceWithLearner struct {
	Attendance
	Learner UserSummary `json:"learner"`
}

// JoinResult is returned to a learner after joining a class.
type JoinResult struct {
	Attendance  *Attendance `json:"attendance"`
	MeetingLink string      `json:"meeting_link"`
}
