package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailTypeReminder1h is logged for the pre-class reminder.
const EmailTypeReminder1h = "reminder_1h"

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records each delivery attempt of an automated email.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	LiveClassID    uuid.UUID  `json:"live_class_id"`
	ReminderID     *uuid.UUID `json:"reminder_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
