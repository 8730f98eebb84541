// Package app builds the services shared by the API server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/config"
	"github.com/aura-learn/backend/internal/attendance"
	"github.com/aura-learn/backend/internal/auth"
	"github.com/aura-learn/backend/internal/courses"
	"github.com/aura-learn/backend/internal/emaillogs"
	"github.com/aura-learn/backend/internal/liveclasses"
	"github.com/aura-learn/backend/internal/realtime"
	"github.com/aura-learn/backend/internal/reminders"
	"github.com/aura-learn/backend/internal/sweeper"
	"github.com/aura-learn/backend/internal/worker"
	"github.com/aura-learn/backend/pkg/clock"
	"github.com/aura-learn/backend/pkg/database"
	"github.com/aura-learn/backend/pkg/email"
	"github.com/aura-learn/backend/pkg/queue"
	"github.com/aura-learn/backend/pkg/redis"
	"github.com/aura-learn/backend/pkg/storage"
)

// App holds connections, repositories and services.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Clock  clock.Clock

	Pool  *pgxpool.Pool
	Redis *redis.Client
	S3    *storage.S3 // nil when no recordings bucket is configured
	Queue *queue.Queue
	Hub   *realtime.Hub

	Users     *auth.Repository
	Courses   *courses.Repository
	Classes   *liveclasses.Repository
	Reminders *reminders.Repository
	EmailLogs *emaillogs.Repository

	Registry   *liveclasses.Registry
	Tracker    *attendance.Tracker
	Sweeper    *sweeper.Sweeper
	Dispatcher *reminders.Dispatcher
	Recordings *worker.RecordingProcessor // nil without S3
}

// New connects to PostgreSQL, Redis and S3 and wires the services.
// Database and Redis failures are returned; a broken S3 setup only disables recordings.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Clock: clock.Real()}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.Pool = pool

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb

	if cfg.AWS.RecordingsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			Endpoint:             cfg.AWS.Endpoint,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			a.S3 = s3Client
		}
	} else {
		logger.Warn("AWS_S3_RECORDINGS_BUCKET not set, recording storage disabled")
	}

	a.Queue = queue.NewQueue(rdb.Client, logger)
	a.Hub = realtime.NewHub(logger, realtime.NewRedisBroker(rdb.Client, logger))

	a.Users = auth.NewRepository(pool)
	a.Courses = courses.NewRepository(pool)
	a.Classes = liveclasses.NewRepository(pool)
	a.Reminders = reminders.NewRepository(pool)
	a.EmailLogs = emaillogs.NewRepository(pool)
	attendances := attendance.NewRepository(pool)

	sched := cfg.Scheduler
	a.Registry = liveclasses.NewRegistry(a.Classes, a.Courses, a.Reminders, a.Hub, a.Clock, logger, liveclasses.Options{
		UpcomingLimit:  sched.UpcomingLimit,
		ReminderOffset: sched.ReminderOffset,
	})
	a.Tracker = attendance.NewTracker(attendances, a.Classes, a.Courses, a.Hub, a.Clock, logger, sched.JoinLead)
	a.Sweeper = sweeper.New(a.Classes, rdb, a.Hub, a.Clock, logger, sched.SweepInterval, sched.JoinLead)

	sender := email.New(email.Config{
		APIKey:    cfg.Email.APIKey,
		FromEmail: cfg.Email.FromAddress,
		FromName:  cfg.Email.FromName,
	}, logger)
	a.Dispatcher = reminders.NewDispatcher(a.Reminders, sender, a.EmailLogs, rdb, a.Clock, logger, sched.ReminderInterval)

	if a.S3 != nil {
		a.Recordings = worker.NewRecordingProcessor(a.Queue, a.S3, a.Registry, nil, logger)
	}
	return a, nil
}

// Loops returns the background jobs this instance can run.
func (a *App) Loops() []worker.Loop {
	loops := []worker.Loop{
		worker.SweepLoop(a.Sweeper),
		worker.ReminderLoop(a.Dispatcher),
	}
	if a.Recordings != nil {
		loops = append(loops, worker.RecordingLoop(a.Recordings))
	}
	return loops
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
