package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/reminders"
	"github.com/aura-learn/backend/internal/sweeper"
)

// Loop names accepted by --jobs.
const (
	JobSweeper    = "sweeper"
	JobReminders  = "reminders"
	JobRecordings = "recordings"
)

// SweepLoop wraps the status sweep. A single pass takes the same lock as the
// long-running loop.
func SweepLoop(s *sweeper.Sweeper) Loop {
	return Loop{Name: JobSweeper, Run: s.Run, Once: s.TickOnce}
}

// ReminderLoop wraps reminder delivery. A single pass takes the same lock as
// the long-running loop.
func ReminderLoop(d *reminders.Dispatcher) Loop {
	return Loop{Name: JobReminders, Run: d.Run, Once: d.TickOnce}
}

// RecordingLoop wraps recording imports. A single pass drains the queue.
func RecordingLoop(p *RecordingProcessor) Loop {
	return Loop{
		Name: JobRecordings,
		Run:  p.Run,
		Once: func(ctx context.Context) error {
			n, err := p.Drain(ctx)
			p.logger.Info("recording queue drained", zap.Int("imported", n))
			return err
		},
	}
}
