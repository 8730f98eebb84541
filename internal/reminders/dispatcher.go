package reminders

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/pkg/clock"
	"github.com/aura-learn/backend/pkg/email"
)

const (
	// DefaultInterval is how often due reminders are checked.
	DefaultInterval = 15 * time.Minute
	// DefaultBatchSize is how many due reminders are loaded per page.
	DefaultBatchSize = 500

	lockKey = "lock:reminders"
)

// Cursor is the position of the last reminder of a page, ordered by
// (reminder_at, id). The zero Cursor starts from the beginning.
type Cursor struct {
	ReminderAt time.Time
	ID         uuid.UUID
}

// Store reads due reminders and records delivery.
type Store interface {
	Due(ctx context.Context, now time.Time, after Cursor, limit int) ([]models.DueReminder, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AttemptLog records each delivery attempt.
type AttemptLog interface {
	Create(ctx context.Context, entry *models.EmailLog) error
}

// Locker keeps two instances from dispatching at the same time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Result counts the outcome of one pass.
type Result struct {
	Due    int
	Sent   int
	Failed int
}

// Dispatcher sends due reminders by email.
type Dispatcher struct {
	store     Store
	sender    email.Sender
	attempts  AttemptLog
	lock      Locker
	clock     clock.Clock
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewDispatcher creates a dispatcher. attempts, lock, clk and logger may be nil.
func NewDispatcher(store Store, sender email.Sender, attempts AttemptLog, lock Locker, clk clock.Clock, logger *zap.Logger, interval time.Duration) *Dispatcher {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Dispatcher{
		store:     store,
		sender:    sender,
		attempts:  attempts,
		lock:      lock,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		batchSize: DefaultBatchSize,
	}
}

// DispatchOnce sends every due reminder, page by page. A failed delivery is
// logged and the reminder stays unsent so the next pass retries it.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (Result, error) {
	var res Result
	now := d.clock.Now()
	var after Cursor
	for {
		page, err := d.store.Due(ctx, now, after, d.batchSize)
		if err != nil {
			return res, fmt.Errorf("load due reminders: %w", err)
		}
		res.Due += len(page)
		for i := range page {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if d.deliver(ctx, &page[i]) {
				res.Sent++
			} else {
				res.Failed++
			}
		}
		if len(page) < d.batchSize {
			return res, nil
		}
		last := page[len(page)-1]
		after = Cursor{ReminderAt: last.ReminderAt, ID: last.ID}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, rm *models.DueReminder) bool {
	msg := Message(rm)
	sendErr := d.sender.Send(ctx, msg)
	now := d.clock.Now()
	d.record(ctx, rm, msg.Subject, now, sendErr)
	if sendErr != nil {
		d.logger.Warn("reminder delivery failed",
			zap.Error(sendErr),
			zap.String("reminder_id", rm.ID.String()),
			zap.String("live_class_id", rm.LiveClassID.String()))
		return false
	}
	if err := d.store.MarkSent(ctx, rm.ID, now); err != nil {
		d.logger.Error("mark reminder sent failed", zap.Error(err), zap.String("reminder_id", rm.ID.String()))
		return false
	}
	return true
}

func (d *Dispatcher) record(ctx context.Context, rm *models.DueReminder, subject string, at time.Time, sendErr error) {
	if d.attempts == nil {
		return
	}
	reminderID := rm.ID
	entry := &models.EmailLog{
		ID:             uuid.New(),
		LiveClassID:    rm.LiveClassID,
		ReminderID:     &reminderID,
		EmailType:      models.EmailTypeReminder1h,
		RecipientEmail: rm.LearnerEmail,
		Subject:        subject,
		Status:         models.EmailLogStatusSent,
		SentAt:         &at,
		CreatedAt:      at,
	}
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.SentAt = nil
		entry.ErrorMessage = sendErr.Error()
	}
	if err := d.attempts.Create(ctx, entry); err != nil {
		d.logger.Warn("email log write failed", zap.Error(err), zap.String("reminder_id", rm.ID.String()))
	}
}

// Message renders the reminder email for one learner.
func Message(rm *models.DueReminder) email.Message {
	when := rm.ScheduledAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
	subject := fmt.Sprintf("Reminder: %s starts soon", rm.ClassTitle)
	plain := fmt.Sprintf("Hi %s,\n\nYour live class \"%s\" starts at %s.", rm.LearnerName, rm.ClassTitle, when)
	htmlBody := fmt.Sprintf("<p>Hi %s,</p><p>Your live class <strong>%s</strong> starts at %s.</p>",
		html.EscapeString(rm.LearnerName), html.EscapeString(rm.ClassTitle), when)
	if rm.MeetingLink != "" {
		plain += "\nJoin here: " + rm.MeetingLink
		htmlBody += fmt.Sprintf(`<p><a href="%s">Join the class</a></p>`, html.EscapeString(rm.MeetingLink))
	}
	return email.Message{
		ToEmail:   rm.LearnerEmail,
		ToName:    rm.LearnerName,
		Subject:   subject,
		PlainText: plain,
		HTML:      htmlBody,
	}
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()
	d.logger.Info("reminder dispatcher started", zap.Duration("interval", d.interval))
	d.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("reminder dispatcher stopping")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// TickOnce runs one pass while holding the instance lock. A pass held by
// another instance is skipped without error.
func (d *Dispatcher) TickOnce(ctx context.Context) error {
	if d.lock != nil {
		unlock, ok, err := d.lock.TryLock(ctx, lockKey, d.interval)
		if err != nil {
			return fmt.Errorf("acquire reminder lock: %w", err)
		}
		if !ok {
			d.logger.Debug("reminder pass skipped, another instance holds the lock")
			return nil
		}
		defer unlock()
	}
	res, err := d.DispatchOnce(ctx)
	if res.Due > 0 {
		d.logger.Info("reminder pass", zap.Int("due", res.Due), zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
	}
	return err
}

func (d *Dispatcher) tick(ctx context.Context) {
	if err := d.TickOnce(ctx); err != nil {
		d.logger.Error("reminder pass failed", zap.Error(err))
	}
}
