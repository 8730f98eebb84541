package emaillogs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-learn/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create records one delivery attempt.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, live_class_id, reminder_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, NULLIF($9,''), $10)`
	_, err := r.pool.Exec(ctx, q, el.ID, el.LiveClassID, el.ReminderID, el.EmailType, el.RecipientEmail,
		el.Subject, el.Status, el.SentAt, el.ErrorMessage, el.CreatedAt)
	return err
}

// ListByLiveClass returns email logs for a live class, newest first.
func (r *Repository) ListByLiveClass(ctx context.Context, classID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, live_class_id, reminder_id, email_type, recipient_email, COALESCE(subject,''), status, sent_at, COALESCE(error_message,''), created_at
		FROM email_logs
		WHERE live_class_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		if err := rows.Scan(&el.ID, &el.LiveClassID, &el.ReminderID, &el.EmailType, &el.RecipientEmail, &el.Subject, &el.Status, &el.SentAt, &el.ErrorMessage, &el.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
