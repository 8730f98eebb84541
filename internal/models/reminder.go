package models

import (
	"time"

	"github.com/google/uuid"
)

// ReminderTypeEmail is the only delivery channel for reminders.
const ReminderTypeEmail = "email"

// Reminder is one scheduled notification for one learner about one live class.
type Reminder struct {
	ID          uuid.UUID  `json:"id"`
	LiveClassID uuid.UUID  `json:"live_class_id"`
	LearnerID   uuid.UUID  `json:"learner_id"`
	ReminderAt  time.Time  `json:"reminder_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Type        string     `json:"type"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DueReminder is an unsent reminder joined with what the message needs.
type DueReminder struct {
	Reminder
	LearnerEmail string
	LearnerName  string
	ClassTitle   string
	ScheduledAt  time.Time
	MeetingLink  string
}
