package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-learn/backend/internal/models"
)

const attendanceColumns = `id, live_class_id, learner_id, joined_at, left_at, duration_mins, created_at, updated_at`

// Repository handles attendances persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAttendance(row pgx.Row) (*models.Attendance, error) {
	var a models.Attendance
	err := row.Scan(&a.ID, &a.LiveClassID, &a.LearnerID, &a.JoinedAt, &a.LeftAt, &a.DurationMins, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Join admits a learner in one transaction. The class row is locked so the
// active count that admit sees cannot change until the upsert commits. A
// SCHEDULED class is promoted to LIVE in the same transaction.
func (r *Repository) Join(ctx context.Context, classID, learnerID uuid.UUID, at time.Time, admit AdmitFunc) (*JoinOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lc models.LiveClass
	err = tx.QueryRow(ctx,
		`SELECT id, course_id, scheduled_at, duration_minutes, max_attendees, status, COALESCE(meeting_link,'')
		 FROM live_classes WHERE id = $1 FOR UPDATE`, classID).
		Scan(&lc.ID, &lc.CourseID, &lc.ScheduledAt, &lc.DurationMinutes, &lc.MaxAttendees, &lc.Status, &lc.MeetingLink)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock class: %w", err)
	}

	var active int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendances WHERE live_class_id = $1 AND left_at IS NULL AND learner_id <> $2`,
		classID, learnerID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("count active: %w", err)
	}
	if err := admit(lc, active); err != nil {
		return nil, err
	}

	const upsert = `INSERT INTO attendances (id, live_class_id, learner_id, joined_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $4)
		ON CONFLICT (live_class_id, learner_id)
		DO UPDATE SET joined_at = EXCLUDED.joined_at, left_at = NULL, duration_mins = NULL, updated_at = EXCLUDED.updated_at
		RETURNING ` + attendanceColumns
	att, err := scanAttendance(tx.QueryRow(ctx, upsert, uuid.New(), classID, learnerID, at))
	if err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}

	out := &JoinOutcome{Attendance: att, Class: lc}
	if lc.Status == models.LiveClassScheduled && lc.Status.CanTransitionTo(models.LiveClassLive) {
		tag, err := tx.Exec(ctx,
			`UPDATE live_classes SET status = 'LIVE', updated_at = $2 WHERE id = $1 AND status = 'SCHEDULED'`,
			classID, at)
		if err != nil {
			return nil, fmt.Errorf("promote class: %w", err)
		}
		out.Promoted = tag.RowsAffected() == 1
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// Get returns one learner's attendance for a class or models.ErrNotFound.
func (r *Repository) Get(ctx context.Context, classID, learnerID uuid.UUID) (*models.Attendance, error) {
	return scanAttendance(r.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendances WHERE live_class_id = $1 AND learner_id = $2`,
		classID, learnerID))
}

// Leave records when the learner left and how many minutes they attended.
func (r *Repository) Leave(ctx context.Context, classID, learnerID uuid.UUID, at time.Time, durationMins int) (*models.Attendance, error) {
	return scanAttendance(r.pool.QueryRow(ctx,
		`UPDATE attendances SET left_at = $3, duration_mins = $4, updated_at = $3
		 WHERE live_class_id = $1 AND learner_id = $2
		 RETURNING `+attendanceColumns,
		classID, learnerID, at, durationMins))
}
