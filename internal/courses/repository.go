// Package courses reads the course, enrollment and user records owned by
// other services. Nothing here writes.
package courses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-learn/backend/internal/models"
)

// Repository answers course, enrollment and user lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a courses repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCourse returns a course by ID or models.ErrNotFound.
func (r *Repository) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	const q = `SELECT id, title, COALESCE(thumbnail_url,''), teacher_id FROM courses WHERE id = $1`
	var c models.Course
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Title, &c.ThumbnailURL, &c.TeacherID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// IsEnrolled reports whether the user has an enrollment in the course.
func (r *Repository) IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(&ok)
	return ok, err
}

// EnrolledLearnerIDs returns the users enrolled in a course.
func (r *Repository) EnrolledLearnerIDs(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	return r.ids(ctx, `SELECT user_id FROM enrollments WHERE course_id = $1`, courseID)
}

// EnrolledCourseIDs returns the courses a user is enrolled in.
func (r *Repository) EnrolledCourseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.ids(ctx, `SELECT course_id FROM enrollments WHERE user_id = $1`, userID)
}

// GetUser returns a user by ID or models.ErrNotFound.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, full_name, role, created_at, updated_at FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) ids(ctx context.Context, q string, arg uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		list = append(list, id)
	}
	return list, rows.Err()
}
