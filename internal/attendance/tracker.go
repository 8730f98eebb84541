// Package attendance admits learners into live classes and records when they leave.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/policy"
	"github.com/aura-learn/backend/internal/realtime"
	"github.com/aura-learn/backend/pkg/clock"
)

// DefaultJoinLead is how early before the start learners may join.
const DefaultJoinLead = 15 * time.Minute

// AdmitFunc decides, under the class lock, whether one more learner may join.
// active excludes the joining learner's own row.
type AdmitFunc func(class models.LiveClass, active int) error

// JoinOutcome is what Store.Join committed.
type JoinOutcome struct {
	Attendance *models.Attendance
	Class      models.LiveClass
	Promoted   bool
}

// Store persists attendance rows.
type Store interface {
	Join(ctx context.Context, classID, learnerID uuid.UUID, at time.Time, admit AdmitFunc) (*JoinOutcome, error)
	Get(ctx context.Context, classID, learnerID uuid.UUID) (*models.Attendance, error)
	Leave(ctx context.Context, classID, learnerID uuid.UUID, at time.Time, durationMins int) (*models.Attendance, error)
}

// Classes loads live classes.
type Classes interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LiveClass, error)
}

// Enrollments answers whether a user is enrolled in a course.
type Enrollments interface {
	IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// Tracker implements join and leave.
type Tracker struct {
	store   Store
	classes Classes
	enroll  Enrollments
	events  realtime.Publisher
	clock   clock.Clock
	logger  *zap.Logger
	lead    time.Duration
}

// NewTracker creates a tracker. events, clk and logger may be nil; lead <= 0 uses DefaultJoinLead.
func NewTracker(store Store, classes Classes, enroll Enrollments, events realtime.Publisher, clk clock.Clock, logger *zap.Logger, lead time.Duration) *Tracker {
	if events == nil {
		events = realtime.Nop{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lead <= 0 {
		lead = DefaultJoinLead
	}
	return &Tracker{store: store, classes: classes, enroll: enroll, events: events, clock: clk, logger: logger, lead: lead}
}

// Join admits an enrolled learner during the join window if the class has room.
func (t *Tracker) Join(ctx context.Context, classID, learnerID uuid.UUID) (*models.JoinResult, error) {
	lc, err := t.classes.Get(ctx, classID)
	if err != nil {
		return nil, classNotFound(err)
	}
	enrolled, err := t.enroll.IsEnrolled(ctx, learnerID, lc.CourseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if err := policy.CanAttend(enrolled).Err(); err != nil {
		return nil, err
	}

	now := t.clock.Now()
	if err := t.checkWindow(lc, now); err != nil {
		return nil, err
	}

	out, err := t.store.Join(ctx, classID, learnerID, now, func(locked models.LiveClass, active int) error {
		if err := t.checkWindow(&locked, now); err != nil {
			return err
		}
		if locked.MaxAttendees != nil && active >= *locked.MaxAttendees {
			return models.NewError(models.ErrCapacityExceeded, "Live class is full")
		}
		return nil
	})
	if err != nil {
		return nil, classNotFound(err)
	}

	if out.Promoted {
		t.logger.Info("live class started by first join", zap.String("live_class_id", classID.String()))
		t.events.Publish(classID, realtime.EventStatusChanged, realtime.StatusChange{
			LiveClassID: classID, From: string(models.LiveClassScheduled), To: string(models.LiveClassLive), At: now,
		})
	}
	t.events.Publish(classID, realtime.EventAttendeeJoined, realtime.AttendeeChange{
		LiveClassID: classID, LearnerID: learnerID, At: now,
	})
	return &models.JoinResult{Attendance: out.Attendance, MeetingLink: out.Class.MeetingLink}, nil
}

func (t *Tracker) checkWindow(lc *models.LiveClass, now time.Time) error {
	if lc.Status == models.LiveClassCancelled {
		return models.NewError(models.ErrInvalidState, "Live class has been cancelled")
	}
	if now.Before(lc.ScheduledAt.Add(-t.lead)) {
		return models.NewError(models.ErrInvalidState,
			fmt.Sprintf("Live class has not started yet. You can join %d minutes before.", int(t.lead.Minutes())))
	}
	if now.After(lc.EndsAt()) || lc.Status == models.LiveClassCompleted {
		return models.NewError(models.ErrInvalidState, "Live class has ended")
	}
	return nil
}

// Leave closes the learner's attendance and records the minutes attended.
// Leaving twice returns the first record unchanged.
func (t *Tracker) Leave(ctx context.Context, classID, learnerID uuid.UUID) (*models.Attendance, error) {
	att, err := t.store.Get(ctx, classID, learnerID)
	if err != nil {
		if isNotFound(err) {
			return nil, models.NewError(models.ErrNotFound, "Attendance record not found")
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	if att.JoinedAt == nil {
		return nil, models.NewError(models.ErrInvalidState, "You have not joined this live class")
	}
	if att.LeftAt != nil {
		return att, nil
	}

	now := t.clock.Now()
	mins := models.AttendedMinutes(*att.JoinedAt, now)
	updated, err := t.store.Leave(ctx, classID, learnerID, now, mins)
	if err != nil {
		return nil, fmt.Errorf("leave: %w", err)
	}
	t.events.Publish(classID, realtime.EventAttendeeLeft, realtime.AttendeeChange{
		LiveClassID: classID, LearnerID: learnerID, DurationMins: &mins, At: now,
	})
	return updated, nil
}
