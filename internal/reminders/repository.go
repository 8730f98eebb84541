package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-learn/backend/internal/models"
)

// Repository handles reminders persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reminders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateMany inserts reminders, skipping any (class, learner, type) that already exists.
// It returns how many rows were inserted.
func (r *Repository) CreateMany(ctx context.Context, list []models.Reminder) (int, error) {
	if len(list) == 0 {
		return 0, nil
	}
	const q = `INSERT INTO reminders (id, live_class_id, learner_id, reminder_at, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (live_class_id, learner_id, type) DO NOTHING`
	batch := &pgx.Batch{}
	for _, rm := range list {
		batch.Queue(q, rm.ID, rm.LiveClassID, rm.LearnerID, rm.ReminderAt, rm.Type, rm.CreatedAt)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	inserted := 0
	for range list {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Reschedule moves every unsent reminder of a class to reminderAt.
func (r *Repository) Reschedule(ctx context.Context, classID uuid.UUID, reminderAt time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reminders SET reminder_at = $2 WHERE live_class_id = $1 AND sent_at IS NULL`,
		classID, reminderAt)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Due returns one page of unsent reminders whose time has come, ordered by
// (reminder_at, id) and starting after the cursor. Reminders of cancelled
// classes are skipped.
func (r *Repository) Due(ctx context.Context, now time.Time, after Cursor, limit int) ([]models.DueReminder, error) {
	const q = `SELECT r.id, r.live_class_id, r.learner_id, r.reminder_at, r.sent_at, r.type, r.created_at,
		u.email, u.full_name, lc.title, lc.scheduled_at, COALESCE(lc.meeting_link,'')
		FROM reminders r
		JOIN users u ON u.id = r.learner_id
		JOIN live_classes lc ON lc.id = r.live_class_id
		WHERE r.sent_at IS NULL AND r.reminder_at <= $1 AND lc.status <> 'CANCELLED'
			AND (r.reminder_at, r.id) > ($2, $3)
		ORDER BY r.reminder_at ASC, r.id ASC
		LIMIT $4`
	rows, err := r.pool.Query(ctx, q, now, after.ReminderAt, after.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.DueReminder
	for rows.Next() {
		var d models.DueReminder
		if err := rows.Scan(&d.ID, &d.LiveClassID, &d.LearnerID, &d.ReminderAt, &d.SentAt, &d.Type, &d.CreatedAt,
			&d.LearnerEmail, &d.LearnerName, &d.ClassTitle, &d.ScheduledAt, &d.MeetingLink); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// MarkSent records delivery. It is a no-op for a reminder already marked.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE reminders SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, at)
	return err
}

// ListByClass returns every reminder of a class.
func (r *Repository) ListByClass(ctx context.Context, classID uuid.UUID) ([]models.Reminder, error) {
	const q = `SELECT id, live_class_id, learner_id, reminder_at, sent_at, type, created_at
		FROM reminders WHERE live_class_id = $1 ORDER BY reminder_at ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, q, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Reminder
	for rows.Next() {
		var rm models.Reminder
		if err := rows.Scan(&rm.ID, &rm.LiveClassID, &rm.LearnerID, &rm.ReminderAt, &rm.SentAt, &rm.Type, &rm.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, rm)
	}
	return list, rows.Err()
}
