package liveclasses

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-learn/backend/internal/models"
)

type memStore struct {
	mu          sync.Mutex
	classes     map[uuid.UUID]models.LiveClass
	attendances []models.AttendanceWithLearner
}

func newMemStore() *memStore {
	return &memStore{classes: map[uuid.UUID]models.LiveClass{}}
}

func (m *memStore) Create(_ context.Context, lc *models.LiveClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[lc.ID] = *lc
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*models.LiveClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lc, ok := m.classes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &lc, nil
}

func (m *memStore) sorted(keep func(models.LiveClass) bool) []models.LiveClass {
	var out []models.LiveClass
	for _, lc := range m.classes {
		if keep(lc) {
			out = append(out, lc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (m *memStore) ListByCourse(_ context.Context, courseID uuid.UUID) ([]models.LiveClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(lc models.LiveClass) bool { return lc.CourseID == courseID }), nil
}

func (m *memStore) ListUpcoming(_ context.Context, courseIDs []uuid.UUID, from time.Time, limit int) ([]models.LiveClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := map[uuid.UUID]bool{}
	for _, id := range courseIDs {
		in[id] = true
	}
	out := m.sorted(func(lc models.LiveClass) bool {
		return in[lc.CourseID] && !lc.ScheduledAt.Before(from) &&
			(lc.Status == models.LiveClassScheduled || lc.Status == models.LiveClassLive)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, lc *models.LiveClass, prev models.LiveClassStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.classes[lc.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != prev {
		return models.NewError(models.ErrInvalidState, "live class status changed concurrently")
	}
	m.classes[lc.ID] = *lc
	return nil
}

func (m *memStore) SetRecording(_ context.Context, id uuid.UUID, url, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lc, ok := m.classes[id]
	if !ok {
		return models.ErrNotFound
	}
	lc.RecordingURL, lc.RecordingKey, lc.UpdatedAt = url, key, at
	m.classes[id] = lc
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.classes, id)
	return nil
}

func (m *memStore) ListAttendances(_ context.Context, classID uuid.UUID) ([]models.AttendanceWithLearner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AttendanceWithLearner
	for _, a := range m.attendances {
		if a.LiveClassID == classID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) AttendanceOf(_ context.Context, classIDs []uuid.UUID, learnerID uuid.UUID) (map[uuid.UUID]*models.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]*models.Attendance{}
	for _, id := range classIDs {
		for i := range m.attendances {
			a := m.attendances[i].Attendance
			if a.LiveClassID == id && a.LearnerID == learnerID {
				out[id] = &a
			}
		}
	}
	return out, nil
}

type memDirectory struct {
	courses  map[uuid.UUID]models.Course
	users    map[uuid.UUID]models.User
	enrolled map[uuid.UUID][]uuid.UUID // course -> learners
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		courses:  map[uuid.UUID]models.Course{},
		users:    map[uuid.UUID]models.User{},
		enrolled: map[uuid.UUID][]uuid.UUID{},
	}
}

func (d *memDirectory) GetCourse(_ context.Context, id uuid.UUID) (*models.Course, error) {
	c, ok := d.courses[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (d *memDirectory) IsEnrolled(_ context.Context, userID, courseID uuid.UUID) (bool, error) {
	for _, id := range d.enrolled[courseID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (d *memDirectory) EnrolledLearnerIDs(_ context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	return d.enrolled[courseID], nil
}

func (d *memDirectory) EnrolledCourseIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for courseID, learners := range d.enrolled {
		for _, id := range learners {
			if id == userID {
				out = append(out, courseID)
			}
		}
	}
	return out, nil
}

func (d *memDirectory) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

type memReminders struct {
	mu          sync.Mutex
	list        []models.Reminder
	rescheduled []time.Time
	fail        error
}

func (r *memReminders) CreateMany(_ context.Context, list []models.Reminder) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return 0, r.fail
	}
	r.list = append(r.list, list...)
	return len(list), nil
}

func (r *memReminders) Reschedule(_ context.Context, classID uuid.UUID, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.list {
		if r.list[i].LiveClassID == classID && r.list[i].SentAt == nil {
			r.list[i].ReminderAt = at
			n++
		}
	}
	r.rescheduled = append(r.rescheduled, at)
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ uuid.UUID, event string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}
