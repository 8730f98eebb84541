package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/realtime"
	"github.com/aura-learn/backend/pkg/clock"
)

type memStore struct {
	mu          sync.Mutex
	classes     map[uuid.UUID]*models.LiveClass
	promoteErr  error
	completeErr error
	sweeps      chan struct{}
}

func newMemStore() *memStore {
	return &memStore{classes: map[uuid.UUID]*models.LiveClass{}}
}

func (m *memStore) add(status models.LiveClassStatus, at time.Time, mins int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.classes[id] = &models.LiveClass{ID: id, Status: status, ScheduledAt: at, DurationMinutes: mins}
	return id
}

func (m *memStore) status(id uuid.UUID) models.LiveClassStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classes[id].Status
}

func (m *memStore) PromoteDue(_ context.Context, until, at time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promoteErr != nil {
		return nil, m.promoteErr
	}
	var ids []uuid.UUID
	for id, lc := range m.classes {
		if lc.Status == models.LiveClassScheduled && !lc.ScheduledAt.After(until) {
			lc.Status, lc.UpdatedAt = models.LiveClassLive, at
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) CompleteEnded(_ context.Context, at time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweeps != nil {
		defer func() { m.sweeps <- struct{}{} }()
	}
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	var ids []uuid.UUID
	for id, lc := range m.classes {
		if lc.Status == models.LiveClassLive && lc.EndsAt().Before(at) {
			lc.Status, lc.UpdatedAt = models.LiveClassCompleted, at
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type countingPublisher struct {
	mu     sync.Mutex
	counts map[string]int
}

func (p *countingPublisher) Publish(_ uuid.UUID, event string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = map[string]int{}
	}
	p.counts[event]++
}

var start = time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)

func TestSweepOnce(t *testing.T) {
	store := newMemStore()
	clk := clock.Fake(start)
	events := &countingPublisher{}
	s := New(store, nil, events, clk, nil, 0, 0)

	soon := store.add(models.LiveClassScheduled, start.Add(15*time.Minute), 60)
	later := store.add(models.LiveClassScheduled, start.Add(16*time.Minute), 60)
	running := store.add(models.LiveClassLive, start.Add(-30*time.Minute), 60)
	over := store.add(models.LiveClassLive, start.Add(-61*time.Minute), 60)
	endsNow := store.add(models.LiveClassLive, start.Add(-60*time.Minute), 60)
	cancelled := store.add(models.LiveClassCancelled, start.Add(-2*time.Hour), 60)

	res, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{soon}, res.Started)
	assert.Equal(t, []uuid.UUID{over}, res.Completed)

	assert.Equal(t, models.LiveClassLive, store.status(soon))
	assert.Equal(t, models.LiveClassScheduled, store.status(later))
	assert.Equal(t, models.LiveClassLive, store.status(running))
	assert.Equal(t, models.LiveClassCompleted, store.status(over))
	assert.Equal(t, models.LiveClassLive, store.status(endsNow))
	assert.Equal(t, models.LiveClassCancelled, store.status(cancelled))
	assert.Equal(t, 2, events.counts[realtime.EventStatusChanged])

	again, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Started)
	assert.Empty(t, again.Completed)
}

func TestSweepCompletesMissedClassInOnePass(t *testing.T) {
	store := newMemStore()
	clk := clock.Fake(start.Add(61 * time.Minute))
	s := New(store, nil, nil, clk, nil, 0, 0)
	id := store.add(models.LiveClassScheduled, start, 60)

	res, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Started)
	assert.Equal(t, []uuid.UUID{id}, res.Completed)
	assert.Equal(t, models.LiveClassCompleted, store.status(id))
}

func TestSweepPhasesAreIsolated(t *testing.T) {
	store := newMemStore()
	store.promoteErr = errors.New("deadlock detected")
	s := New(store, nil, nil, clock.Fake(start), nil, 0, 0)
	pending := store.add(models.LiveClassScheduled, start, 60)
	over := store.add(models.LiveClassLive, start.Add(-2*time.Hour), 60)

	res, err := s.SweepOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promote due classes")
	assert.Equal(t, []uuid.UUID{over}, res.Completed)
	assert.Equal(t, models.LiveClassScheduled, store.status(pending))

	store.promoteErr = nil
	store.completeErr = errors.New("connection reset")
	res, err = s.SweepOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "complete ended classes")
	assert.Equal(t, []uuid.UUID{pending}, res.Started)
}

type stubLock struct {
	mu       sync.Mutex
	held     bool
	err      error
	acquired int
}

func (l *stubLock) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.acquired++
	return func() {}, true, nil
}

func TestSweepSkippedWhileLocked(t *testing.T) {
	store := newMemStore()
	lock := &stubLock{held: true}
	s := New(store, lock, nil, clock.Fake(start), nil, 0, 0)
	id := store.add(models.LiveClassScheduled, start, 60)

	require.NoError(t, s.TickOnce(context.Background()))
	assert.Equal(t, models.LiveClassScheduled, store.status(id))

	lock.err = errors.New("redis: i/o timeout")
	err := s.TickOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire sweeper lock")
	assert.Equal(t, models.LiveClassScheduled, store.status(id))

	lock.err, lock.held = nil, false
	require.NoError(t, s.TickOnce(context.Background()))
	assert.Equal(t, models.LiveClassLive, store.status(id))
	assert.Equal(t, 1, lock.acquired)
}

func TestRunSweepsOnEveryTick(t *testing.T) {
	store := newMemStore()
	store.sweeps = make(chan struct{}, 4)
	clk := clock.Fake(start)
	s := New(store, nil, nil, clk, nil, time.Minute, 0)
	id := store.add(models.LiveClassScheduled, start.Add(20*time.Minute), 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitSweep(t, store.sweeps)
	assert.Equal(t, models.LiveClassScheduled, store.status(id))

	clk.Advance(5 * time.Minute)
	waitSweep(t, store.sweeps)
	assert.Equal(t, models.LiveClassLive, store.status(id))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func waitSweep(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("sweep did not run")
	}
}
