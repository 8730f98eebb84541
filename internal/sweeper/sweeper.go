// Package sweeper moves live classes through their lifecycle on a timer:
// due classes go live, finished classes complete.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/realtime"
	"github.com/aura-learn/backend/pkg/clock"
)

const (
	// DefaultInterval is how often the sweep runs.
	DefaultInterval = 5 * time.Minute
	// DefaultLead is how far ahead of the start a class is promoted to LIVE.
	DefaultLead = 15 * time.Minute

	lockKey = "lock:sweeper"
)

// Store applies bulk status changes and returns the affected class IDs.
type Store interface {
	PromoteDue(ctx context.Context, until, at time.Time) ([]uuid.UUID, error)
	CompleteEnded(ctx context.Context, at time.Time) ([]uuid.UUID, error)
}

// Locker keeps two instances from sweeping at the same time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Result lists the classes changed by one sweep.
type Result struct {
	Started   []uuid.UUID
	Completed []uuid.UUID
}

// Sweeper runs the periodic status sweep.
type Sweeper struct {
	store    Store
	lock     Locker
	events   realtime.Publisher
	clock    clock.Clock
	logger   *zap.Logger
	interval time.Duration
	lead     time.Duration
}

// New creates a sweeper. lock, events, clk and logger may be nil.
func New(store Store, lock Locker, events realtime.Publisher, clk clock.Clock, logger *zap.Logger, interval, lead time.Duration) *Sweeper {
	if events == nil {
		events = realtime.Nop{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Sweeper{store: store, lock: lock, events: events, clock: clk, logger: logger, interval: interval, lead: lead}
}

// SweepOnce promotes due classes, then completes ended ones. The phases are
// independent: a failing phase is reported and the other still runs.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	var res Result
	now := s.clock.Now()

	started, promoteErr := s.store.PromoteDue(ctx, now.Add(s.lead), now)
	if promoteErr != nil {
		promoteErr = fmt.Errorf("promote due classes: %w", promoteErr)
	}
	res.Started = started
	s.announce(started, models.LiveClassScheduled, models.LiveClassLive, now)

	completed, completeErr := s.store.CompleteEnded(ctx, now)
	if completeErr != nil {
		completeErr = fmt.Errorf("complete ended classes: %w", completeErr)
	}
	res.Completed = completed
	s.announce(completed, models.LiveClassLive, models.LiveClassCompleted, now)

	return res, errors.Join(promoteErr, completeErr)
}

func (s *Sweeper) announce(ids []uuid.UUID, from, to models.LiveClassStatus, at time.Time) {
	for _, id := range ids {
		s.events.Publish(id, realtime.EventStatusChanged, realtime.StatusChange{
			LiveClassID: id, From: string(from), To: string(to), At: at,
		})
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("status sweeper started", zap.Duration("interval", s.interval), zap.Duration("lead", s.lead))
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("status sweeper stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// TickOnce runs one sweep while holding the instance lock. A pass held by
// another instance is skipped without error.
func (s *Sweeper) TickOnce(ctx context.Context) error {
	if s.lock != nil {
		unlock, ok, err := s.lock.TryLock(ctx, lockKey, s.interval)
		if err != nil {
			return fmt.Errorf("acquire sweeper lock: %w", err)
		}
		if !ok {
			s.logger.Debug("sweep skipped, another instance holds the lock")
			return nil
		}
		defer unlock()
	}
	res, err := s.SweepOnce(ctx)
	if len(res.Started) > 0 || len(res.Completed) > 0 {
		s.logger.Info("sweep applied",
			zap.Int("started", len(res.Started)),
			zap.Int("completed", len(res.Completed)))
	}
	return err
}

func (s *Sweeper) tick(ctx context.Context) {
	if err := s.TickOnce(ctx); err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
}
