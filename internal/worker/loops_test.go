package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/reminders"
	"github.com/aura-learn/backend/internal/sweeper"
	"github.com/aura-learn/backend/pkg/clock"
	"github.com/aura-learn/backend/pkg/queue"
	"github.com/aura-learn/backend/pkg/storage"
)

type countingStore struct{ promoted, completed int }

func (s *countingStore) PromoteDue(context.Context, time.Time, time.Time) ([]uuid.UUID, error) {
	s.promoted++
	return []uuid.UUID{uuid.New()}, nil
}

func (s *countingStore) CompleteEnded(context.Context, time.Time) ([]uuid.UUID, error) {
	s.completed++
	return nil, nil
}

type emptyReminders struct{}

func (emptyReminders) Due(context.Context, time.Time, reminders.Cursor, int) ([]models.DueReminder, error) {
	return nil, nil
}

func (emptyReminders) MarkSent(context.Context, uuid.UUID, time.Time) error { return nil }

func TestStandardLoopsRunOnce(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	store := &countingStore{}
	sw := sweeper.New(store, nil, nil, clk, nil, 0, 0)
	disp := reminders.NewDispatcher(emptyReminders{}, nil, nil, nil, clk, nil, 0)
	source := &sliceSource{}
	proc := NewRecordingProcessor(source, &memBucket{}, &memClasses{}, nil, nil)

	r := NewRunner(nil, SweepLoop(sw), ReminderLoop(disp), RecordingLoop(proc))
	assert.Equal(t, []string{JobSweeper, JobReminders, JobRecordings}, r.Names())

	require.NoError(t, r.RunOnce(context.Background()))
	assert.Equal(t, 1, store.promoted)
	assert.Equal(t, 1, store.completed)
	assert.Empty(t, source.retried)
}

type heldLock struct{ keys []string }

func (l *heldLock) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.keys = append(l.keys, key)
	return nil, false, nil
}

func TestRunOnceHonoursSchedulerLocks(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	store := &countingStore{}
	lock := &heldLock{}
	sw := sweeper.New(store, lock, nil, clk, nil, 0, 0)
	disp := reminders.NewDispatcher(emptyReminders{}, nil, nil, lock, clk, nil, 0)

	r := NewRunner(nil, SweepLoop(sw), ReminderLoop(disp))
	require.NoError(t, r.RunOnce(context.Background()))
	assert.Zero(t, store.promoted)
	assert.Zero(t, store.completed)
	assert.Equal(t, []string{"lock:sweeper", "lock:reminders"}, lock.keys)
}

var (
	_ JobSource = (*queue.Queue)(nil)
	_ Uploader  = (*storage.S3)(nil)
)
