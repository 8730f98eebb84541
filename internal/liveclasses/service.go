// Package liveclasses schedules live classes for courses and answers queries about them.
package liveclasses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/policy"
	"github.com/aura-learn/backend/internal/realtime"
	"github.com/aura-learn/backend/internal/reminders"
	"github.com/aura-learn/backend/pkg/clock"
)

const (
	// DefaultUpcomingLimit caps the upcoming list.
	DefaultUpcomingLimit = 10
	// DefaultReminderOffset is how long before the start reminders are due.
	DefaultReminderOffset = time.Hour
)

// Store persists live classes.
type Store interface {
	Create(ctx context.Context, lc *models.LiveClass) error
	Get(ctx context.Context, id uuid.UUID) (*models.LiveClass, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.LiveClass, error)
	ListUpcoming(ctx context.Context, courseIDs []uuid.UUID, from time.Time, limit int) ([]models.LiveClass, error)
	Update(ctx context.Context, lc *models.LiveClass, prev models.LiveClassStatus) error
	SetRecording(ctx context.Context, id uuid.UUID, url, key string, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListAttendances(ctx context.Context, classID uuid.UUID) ([]models.AttendanceWithLearner, error)
	AttendanceOf(ctx context.Context, classIDs []uuid.UUID, learnerID uuid.UUID) (map[uuid.UUID]*models.Attendance, error)
}

// Directory looks up courses, enrollments and users.
type Directory interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error)
	IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	EnrolledLearnerIDs(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error)
	EnrolledCourseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ReminderStore records the reminders a class needs.
type ReminderStore interface {
	CreateMany(ctx context.Context, list []models.Reminder) (int, error)
	Reschedule(ctx context.Context, classID uuid.UUID, reminderAt time.Time) (int, error)
}

// Options tunes the registry.
type Options struct {
	UpcomingLimit  int
	ReminderOffset time.Duration
}

// Registry creates, updates, deletes and queries live classes.
type Registry struct {
	store     Store
	dir       Directory
	reminders ReminderStore
	events    realtime.Publisher
	clock     clock.Clock
	logger    *zap.Logger
	opts      Options
}

// NewRegistry creates a registry. events, clk and logger may be nil.
func NewRegistry(store Store, dir Directory, rem ReminderStore, events realtime.Publisher, clk clock.Clock, logger *zap.Logger, opts Options) *Registry {
	if events == nil {
		events = realtime.Nop{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UpcomingLimit <= 0 {
		opts.UpcomingLimit = DefaultUpcomingLimit
	}
	if opts.ReminderOffset <= 0 {
		opts.ReminderOffset = DefaultReminderOffset
	}
	return &Registry{store: store, dir: dir, reminders: rem, events: events, clock: clk, logger: logger, opts: opts}
}

// CreateInput holds the fields of a new live class.
type CreateInput struct {
	CourseID        uuid.UUID
	Title           string
	Description     string
	ScheduledAt     time.Time
	DurationMinutes int
	MeetingLink     string
	MeetingPlatform models.MeetingPlatform
	MaxAttendees    *int
	ThumbnailURL    string
}

func (in *CreateInput) validate() error {
	if in.MeetingPlatform == "" {
		in.MeetingPlatform = models.PlatformZoom
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return models.NewError(models.ErrInvalidInput, "title is required")
	}
	if err := validateDuration(in.DurationMinutes); err != nil {
		return err
	}
	if !in.MeetingPlatform.Valid() {
		return models.NewError(models.ErrInvalidInput, "unsupported meeting platform "+string(in.MeetingPlatform))
	}
	return validateMaxAttendees(in.MaxAttendees)
}

// UpdateInput holds a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title           *string
	Description     *string
	ScheduledAt     *time.Time
	DurationMinutes *int
	MeetingLink     *string
	MeetingPlatform *models.MeetingPlatform
	RecordingURL    *string
	Status          *models.LiveClassStatus
	MaxAttendees    *int
	ThumbnailURL    *string
}

func validateDuration(mins int) error {
	if mins < models.MinDurationMinutes || mins > models.MaxDurationMinutes {
		return models.NewError(models.ErrInvalidInput,
			fmt.Sprintf("duration must be between %d and %d minutes", models.MinDurationMinutes, models.MaxDurationMinutes))
	}
	return nil
}

func validateMaxAttendees(n *int) error {
	if n != nil && *n < 1 {
		return models.NewError(models.ErrInvalidInput, "max attendees must be at least 1")
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.NewError(models.ErrNotFound, what+" not found")
	}
	return err
}

// Create schedules a class for a course and plans a reminder for every enrolled learner.
func (r *Registry) Create(ctx context.Context, caller policy.Caller, in CreateInput) (*models.LiveClassDetail, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	course, err := r.dir.GetCourse(ctx, in.CourseID)
	if err != nil {
		return nil, notFound(err, "Course")
	}
	if err := policy.CanCreate(caller, *course).Err(); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	lc := &models.LiveClass{
		ID:              uuid.New(),
		CourseID:        course.ID,
		Title:           in.Title,
		Description:     in.Description,
		ScheduledAt:     in.ScheduledAt,
		DurationMinutes: in.DurationMinutes,
		MeetingLink:     in.MeetingLink,
		MeetingPlatform: in.MeetingPlatform,
		MaxAttendees:    in.MaxAttendees,
		ThumbnailURL:    in.ThumbnailURL,
		Status:          models.LiveClassScheduled,
		CreatedByID:     caller.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.store.Create(ctx, lc); err != nil {
		return nil, fmt.Errorf("create live class: %w", err)
	}
	r.scheduleReminders(ctx, lc)

	r.logger.Info("live class created",
		zap.String("live_class_id", lc.ID.String()),
		zap.String("course_id", lc.CourseID.String()),
		zap.Time("scheduled_at", lc.ScheduledAt))
	return &models.LiveClassDetail{LiveClass: *lc, Course: course.Summary(), CreatedBy: r.userSummary(ctx, lc.CreatedByID)}, nil
}

// The class is already stored when this runs, so failures are logged rather than returned.
func (r *Registry) scheduleReminders(ctx context.Context, lc *models.LiveClass) {
	learners, err := r.dir.EnrolledLearnerIDs(ctx, lc.CourseID)
	if err != nil {
		r.logger.Error("list enrolled learners failed", zap.Error(err), zap.String("live_class_id", lc.ID.String()))
		return
	}
	if len(learners) == 0 {
		return
	}
	planned := reminders.Plan(*lc, learners, r.opts.ReminderOffset, r.clock.Now())
	n, err := r.reminders.CreateMany(ctx, planned)
	if err != nil {
		r.logger.Error("create reminders failed", zap.Error(err), zap.String("live_class_id", lc.ID.String()))
		return
	}
	r.logger.Debug("reminders scheduled", zap.String("live_class_id", lc.ID.String()), zap.Int("count", n))
}

// Get returns a class with course, creator, attendances and counts.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.LiveClassDetail, error) {
	lc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "Live class")
	}
	detail := &models.LiveClassDetail{LiveClass: *lc, CreatedBy: r.userSummary(ctx, lc.CreatedByID)}
	if course, err := r.dir.GetCourse(ctx, lc.CourseID); err == nil {
		detail.Course = course.Summary()
	}
	attendances, err := r.store.ListAttendances(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}
	counts := &models.AttendanceCounts{Attendances: len(attendances)}
	for i := range attendances {
		if attendances[i].Active() {
			counts.Active++
		}
	}
	detail.Attendances = attendances
	detail.Count = counts
	return detail, nil
}

// ListByCourse returns the course's classes earliest first, each with the viewer's own attendance.
func (r *Registry) ListByCourse(ctx context.Context, courseID, viewerID uuid.UUID) ([]models.LiveClassDetail, error) {
	classes, err := r.store.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list by course: %w", err)
	}
	return r.withMyAttendance(ctx, classes, viewerID, nil)
}

// Upcoming returns the next classes of the learner's enrolled courses that are scheduled or live.
func (r *Registry) Upcoming(ctx context.Context, learnerID uuid.UUID) ([]models.LiveClassDetail, error) {
	courseIDs, err := r.dir.EnrolledCourseIDs(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("enrolled courses: %w", err)
	}
	if len(courseIDs) == 0 {
		return []models.LiveClassDetail{}, nil
	}
	classes, err := r.store.ListUpcoming(ctx, courseIDs, r.clock.Now(), r.opts.UpcomingLimit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}
	courses := make(map[uuid.UUID]*models.CourseSummary)
	return r.withMyAttendance(ctx, classes, learnerID, func(courseID uuid.UUID) *models.CourseSummary {
		if s, ok := courses[courseID]; ok {
			return s
		}
		var s *models.CourseSummary
		if c, err := r.dir.GetCourse(ctx, courseID); err == nil {
			s = c.Summary()
		}
		courses[courseID] = s
		return s
	})
}

func (r *Registry) withMyAttendance(ctx context.Context, classes []models.LiveClass, viewerID uuid.UUID, course func(uuid.UUID) *models.CourseSummary) ([]models.LiveClassDetail, error) {
	ids := make([]uuid.UUID, len(classes))
	for i := range classes {
		ids[i] = classes[i].ID
	}
	mine, err := r.store.AttendanceOf(ctx, ids, viewerID)
	if err != nil {
		return nil, fmt.Errorf("viewer attendance: %w", err)
	}
	out := make([]models.LiveClassDetail, 0, len(classes))
	for _, lc := range classes {
		d := models.LiveClassDetail{LiveClass: lc, MyAttendance: mine[lc.ID]}
		if course != nil {
			d.Course = course(lc.CourseID)
		}
		out = append(out, d)
	}
	return out, nil
}

// Update applies a partial update. Status changes must follow the transition table.
func (r *Registry) Update(ctx context.Context, caller policy.Caller, id uuid.UUID, in UpdateInput) (*models.LiveClassDetail, error) {
	lc, course, err := r.Managed(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	prev := *lc
	if err := apply(lc, in); err != nil {
		return nil, err
	}
	lc.UpdatedAt = r.clock.Now()
	if err := r.store.Update(ctx, lc, prev.Status); err != nil {
		return nil, notFound(err, "Live class")
	}

	if !lc.ScheduledAt.Equal(prev.ScheduledAt) {
		if n, err := r.reminders.Reschedule(ctx, lc.ID, lc.ScheduledAt.Add(-r.opts.ReminderOffset)); err != nil {
			r.logger.Error("reschedule reminders failed", zap.Error(err), zap.String("live_class_id", lc.ID.String()))
		} else {
			r.logger.Debug("reminders rescheduled", zap.String("live_class_id", lc.ID.String()), zap.Int("count", n))
		}
	}
	if lc.Status != prev.Status {
		r.events.Publish(lc.ID, realtime.EventStatusChanged, realtime.StatusChange{
			LiveClassID: lc.ID, From: string(prev.Status), To: string(lc.Status), At: lc.UpdatedAt,
		})
	}
	return &models.LiveClassDetail{LiveClass: *lc, Course: course.Summary(), CreatedBy: r.userSummary(ctx, lc.CreatedByID)}, nil
}

func apply(lc *models.LiveClass, in UpdateInput) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return models.NewError(models.ErrInvalidInput, "title must not be empty")
		}
		lc.Title = title
	}
	if in.Description != nil {
		lc.Description = *in.Description
	}
	if in.ScheduledAt != nil {
		lc.ScheduledAt = *in.ScheduledAt
	}
	if in.DurationMinutes != nil {
		if err := validateDuration(*in.DurationMinutes); err != nil {
			return err
		}
		lc.DurationMinutes = *in.DurationMinutes
	}
	if in.MeetingLink != nil {
		lc.MeetingLink = *in.MeetingLink
	}
	if in.MeetingPlatform != nil {
		if !in.MeetingPlatform.Valid() {
			return models.NewError(models.ErrInvalidInput, "unsupported meeting platform "+string(*in.MeetingPlatform))
		}
		lc.MeetingPlatform = *in.MeetingPlatform
	}
	if in.RecordingURL != nil {
		lc.RecordingURL = *in.RecordingURL
	}
	if in.MaxAttendees != nil {
		if err := validateMaxAttendees(in.MaxAttendees); err != nil {
			return err
		}
		limit := *in.MaxAttendees
		lc.MaxAttendees = &limit
	}
	if in.ThumbnailURL != nil {
		lc.ThumbnailURL = *in.ThumbnailURL
	}
	if in.Status != nil && *in.Status != lc.Status {
		if !lc.Status.CanTransitionTo(*in.Status) {
			return models.NewError(models.ErrInvalidState,
				fmt.Sprintf("cannot change status from %s to %s", lc.Status, *in.Status))
		}
		lc.Status = *in.Status
	}
	return nil
}

// Delete removes a class. A class that is currently live cannot be deleted.
func (r *Registry) Delete(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
	lc, _, err := r.Managed(ctx, caller, id)
	if err != nil {
		return err
	}
	if lc.Status == models.LiveClassLive {
		return models.NewError(models.ErrInvalidState, "Cannot delete a live class while it is in progress")
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return notFound(err, "Live class")
	}
	r.logger.Info("live class deleted", zap.String("live_class_id", id.String()), zap.String("by", caller.ID.String()))
	return nil
}

// Attendees lists the attendance rows of a class for its managers.
func (r *Registry) Attendees(ctx context.Context, caller policy.Caller, id uuid.UUID) ([]models.AttendanceWithLearner, error) {
	if _, _, err := r.Managed(ctx, caller, id); err != nil {
		return nil, err
	}
	list, err := r.store.ListAttendances(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}
	if list == nil {
		list = []models.AttendanceWithLearner{}
	}
	return list, nil
}

// Managed loads a class and its course and checks that caller may manage it.
func (r *Registry) Managed(ctx context.Context, caller policy.Caller, id uuid.UUID) (*models.LiveClass, *models.Course, error) {
	lc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, nil, notFound(err, "Live class")
	}
	course, err := r.dir.GetCourse(ctx, lc.CourseID)
	if err != nil {
		return nil, nil, notFound(err, "Course")
	}
	if err := policy.CanManage(caller, *lc, *course).Err(); err != nil {
		return nil, nil, err
	}
	return lc, course, nil
}

// Viewable loads a class and checks that caller manages it or is enrolled in its course.
func (r *Registry) Viewable(ctx context.Context, caller policy.Caller, id uuid.UUID) (*models.LiveClass, error) {
	lc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "Live class")
	}
	course, err := r.dir.GetCourse(ctx, lc.CourseID)
	if err != nil {
		return nil, notFound(err, "Course")
	}
	enrolled, err := r.dir.IsEnrolled(ctx, caller.ID, lc.CourseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if err := policy.CanView(caller, *lc, *course, enrolled).Err(); err != nil {
		return nil, err
	}
	return lc, nil
}

// AttachRecording stores where a class recording lives and notifies the room.
func (r *Registry) AttachRecording(ctx context.Context, id uuid.UUID, url, key string) error {
	now := r.clock.Now()
	if err := r.store.SetRecording(ctx, id, url, key, now); err != nil {
		return notFound(err, "Live class")
	}
	r.events.Publish(id, realtime.EventRecordingReady, map[string]interface{}{
		"live_class_id": id, "recording_url": url, "at": now,
	})
	return nil
}

func (r *Registry) userSummary(ctx context.Context, id uuid.UUID) *models.UserSummary {
	u, err := r.dir.GetUser(ctx, id)
	if err != nil {
		r.logger.Warn("user lookup failed", zap.Error(err), zap.String("user_id", id.String()))
		return nil
	}
	return u.Summary()
}
