package liveclasses

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-learn/backend/internal/models"
)

const liveClassColumns = `id, course_id, title, COALESCE(description,''), scheduled_at, duration_minutes,
	COALESCE(meeting_link,''), meeting_platform, max_attendees, COALESCE(thumbnail_url,''), status,
	created_by_id, COALESCE(recording_url,''), COALESCE(recording_key,''), created_at, updated_at`

// Repository handles live_classes persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a live class repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanLiveClass(row pgx.Row) (*models.LiveClass, error) {
	var lc models.LiveClass
	err := row.Scan(&lc.ID, &lc.CourseID, &lc.Title, &lc.Description, &lc.ScheduledAt, &lc.DurationMinutes,
		&lc.MeetingLink, &lc.MeetingPlatform, &lc.MaxAttendees, &lc.ThumbnailURL, &lc.Status,
		&lc.CreatedByID, &lc.RecordingURL, &lc.RecordingKey, &lc.CreatedAt, &lc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &lc, nil
}

func collectLiveClasses(rows pgx.Rows) ([]models.LiveClass, error) {
	defer rows.Close()
	var list []models.LiveClass
	for rows.Next() {
		lc, err := scanLiveClass(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *lc)
	}
	return list, rows.Err()
}

// Create inserts a live class. ID and timestamps must already be set.
func (r *Repository) Create(ctx context.Context, lc *models.LiveClass) error {
	const q = `INSERT INTO live_classes (id, course_id, title, description, scheduled_at, duration_minutes,
		meeting_link, meeting_platform, max_attendees, thumbnail_url, status, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, NULLIF($7,''), $8, $9, NULLIF($10,''), $11, $12, $13, $13)`
	_, err := r.pool.Exec(ctx, q, lc.ID, lc.CourseID, lc.Title, lc.Description, lc.ScheduledAt, lc.DurationMinutes,
		lc.MeetingLink, string(lc.MeetingPlatform), lc.MaxAttendees, lc.ThumbnailURL, string(lc.Status), lc.CreatedByID, lc.CreatedAt)
	return err
}

// Get returns a live class by ID or models.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.LiveClass, error) {
	q := `SELECT ` + liveClassColumns + ` FROM live_classes WHERE id = $1`
	lc, err := scanLiveClass(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return lc, err
}

// ListByCourse returns a course's classes, earliest first.
func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.LiveClass, error) {
	q := `SELECT ` + liveClassColumns + ` FROM live_classes WHERE course_id = $1 ORDER BY scheduled_at ASC`
	rows, err := r.pool.Query(ctx, q, courseID)
	if err != nil {
		return nil, err
	}
	return collectLiveClasses(rows)
}

// ListUpcoming returns SCHEDULED or LIVE classes of the given courses starting at or after from.
func (r *Repository) ListUpcoming(ctx context.Context, courseIDs []uuid.UUID, from time.Time, limit int) ([]models.LiveClass, error) {
	ids := make([]string, len(courseIDs))
	for i, id := range courseIDs {
		ids[i] = id.String()
	}
	q := `SELECT ` + liveClassColumns + ` FROM live_classes
		WHERE course_id = ANY($1::uuid[]) AND scheduled_at >= $2 AND status IN ('SCHEDULED', 'LIVE')
		ORDER BY scheduled_at ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, q, ids, from, limit)
	if err != nil {
		return nil, err
	}
	return collectLiveClasses(rows)
}

// Update writes the mutable fields of lc if its stored status still equals prev.
// A concurrent status change yields models.ErrInvalidState.
func (r *Repository) Update(ctx context.Context, lc *models.LiveClass, prev models.LiveClassStatus) error {
	const q = `UPDATE live_classes SET title = $3, description = NULLIF($4,''), scheduled_at = $5, duration_minutes = $6,
		meeting_link = NULLIF($7,''), meeting_platform = $8, max_attendees = $9, thumbnail_url = NULLIF($10,''),
		status = $11, recording_url = NULLIF($12,''), updated_at = $13
		WHERE id = $1 AND status = $2`
	tag, err := r.pool.Exec(ctx, q, lc.ID, string(prev), lc.Title, lc.Description, lc.ScheduledAt, lc.DurationMinutes,
		lc.MeetingLink, string(lc.MeetingPlatform), lc.MaxAttendees, lc.ThumbnailURL, string(lc.Status), lc.RecordingURL, lc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrChanged(ctx, lc.ID)
	}
	return nil
}

// PromoteDue moves every SCHEDULED class starting at or before until to LIVE.
func (r *Repository) PromoteDue(ctx context.Context, until, at time.Time) ([]uuid.UUID, error) {
	if !models.LiveClassScheduled.CanTransitionTo(models.LiveClassLive) {
		return nil, models.ErrInvalidState
	}
	rows, err := r.pool.Query(ctx,
		`UPDATE live_classes SET status = 'LIVE', updated_at = $2
		 WHERE status = 'SCHEDULED' AND scheduled_at <= $1 RETURNING id`,
		until, at)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// CompleteEnded moves every LIVE class whose end is before at to COMPLETED.
func (r *Repository) CompleteEnded(ctx context.Context, at time.Time) ([]uuid.UUID, error) {
	if !models.LiveClassLive.CanTransitionTo(models.LiveClassCompleted) {
		return nil, models.ErrInvalidState
	}
	rows, err := r.pool.Query(ctx,
		`UPDATE live_classes SET status = 'COMPLETED', updated_at = $1
		 WHERE status = 'LIVE' AND scheduled_at + make_interval(mins => duration_minutes) < $1 RETURNING id`,
		at)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// SetRecording stores the recording location of a class.
func (r *Repository) SetRecording(ctx context.Context, id uuid.UUID, url, key string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE live_classes SET recording_url = $2, recording_key = NULLIF($3,''), updated_at = $4 WHERE id = $1`,
		id, url, key, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a class. Attendance and reminder rows cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM live_classes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListAttendances returns every attendance row of a class with learner info, latest join first.
func (r *Repository) ListAttendances(ctx context.Context, classID uuid.UUID) ([]models.AttendanceWithLearner, error) {
	const q = `SELECT a.id, a.live_class_id, a.learner_id, a.joined_at, a.left_at, a.duration_mins, a.created_at, a.updated_at,
		u.id, u.full_name, u.email
		FROM attendances a JOIN users u ON u.id = a.learner_id
		WHERE a.live_class_id = $1 ORDER BY a.joined_at DESC NULLS LAST`
	rows, err := r.pool.Query(ctx, q, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AttendanceWithLearner
	for rows.Next() {
		var a models.AttendanceWithLearner
		if err := rows.Scan(&a.ID, &a.LiveClassID, &a.LearnerID, &a.JoinedAt, &a.LeftAt, &a.DurationMins, &a.CreatedAt, &a.UpdatedAt,
			&a.Learner.ID, &a.Learner.FullName, &a.Learner.Email); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// AttendanceOf returns the learner's attendance for each of the given classes that has one.
func (r *Repository) AttendanceOf(ctx context.Context, classIDs []uuid.UUID, learnerID uuid.UUID) (map[uuid.UUID]*models.Attendance, error) {
	out := make(map[uuid.UUID]*models.Attendance)
	if len(classIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(classIDs))
	for i, id := range classIDs {
		ids[i] = id.String()
	}
	const q = `SELECT id, live_class_id, learner_id, joined_at, left_at, duration_mins, created_at, updated_at
		FROM attendances WHERE live_class_id = ANY($1::uuid[]) AND learner_id = $2`
	rows, err := r.pool.Query(ctx, q, ids, learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a models.Attendance
		if err := rows.Scan(&a.ID, &a.LiveClassID, &a.LearnerID, &a.JoinedAt, &a.LeftAt, &a.DurationMins, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out[a.LiveClassID] = &a
	}
	return out, rows.Err()
}

func (r *Repository) missingOrChanged(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM live_classes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.NewError(models.ErrInvalidState, "live class status changed concurrently, retry the update")
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
