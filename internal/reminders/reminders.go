// Package reminders plans pre-class notifications and delivers them on a schedule.
package reminders

import (
	"time"

	"github.com/google/uuid"

	"github.com/aura-learn/backend/internal/models"
)

// Plan returns one email reminder per learner, due offset before the class starts.
func Plan(lc models.LiveClass, learners []uuid.UUID, offset time.Duration, now time.Time) []models.Reminder {
	at := lc.ScheduledAt.Add(-offset)
	out := make([]models.Reminder, 0, len(learners))
	for _, learnerID := range learners {
		out = append(out, models.Reminder{
			ID:          uuid.New(),
			LiveClassID: lc.ID,
			LearnerID:   learnerID,
			ReminderAt:  at,
			Type:        models.ReminderTypeEmail,
			CreatedAt:   now,
		})
	}
	return out
}
