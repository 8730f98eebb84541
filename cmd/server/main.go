// Package main runs the live class HTTP API with WebSocket rooms and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-learn/backend/config"
	"github.com/aura-learn/backend/internal/app"
	"github.com/aura-learn/backend/internal/attendance"
	"github.com/aura-learn/backend/internal/auth"
	"github.com/aura-learn/backend/internal/emaillogs"
	"github.com/aura-learn/backend/internal/liveclasses"
	"github.com/aura-learn/backend/internal/middleware"
	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/policy"
	"github.com/aura-learn/backend/internal/realtime"
	"github.com/aura-learn/backend/internal/recordings"
	"github.com/aura-learn/backend/internal/reminders"
	"github.com/aura-learn/backend/internal/worker"
	"github.com/aura-learn/backend/pkg/database"
	"github.com/aura-learn/backend/pkg/response"
	"github.com/aura-learn/backend/pkg/validation"
)

func main() {
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	migrate := flag.Bool("migrate", true, "apply embedded migrations on start (AUTO_MIGRATE=false disables)")
	scheduler := flag.Bool("scheduler", false, "run the status sweep, reminders and recording imports in this process")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if flag.CommandLine.Changed("scheduler") {
		cfg.Scheduler.InProcess = *scheduler
	}

	if err := validation.Setup(); err != nil {
		logger.Fatal("validation", zap.Error(err))
	}
	if err := liveclasses.RegisterValidators(); err != nil {
		logger.Fatal("validation", zap.Error(err))
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	if *migrate && cfg.Server.AutoMigrate {
		if err := database.Migrate(ctx, a.Pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(a.Users, jwtService, logger)
	classHandler := liveclasses.NewHandler(a.Registry, logger)
	attendanceHandler := attendance.NewHandler(a.Tracker, logger)
	reminderHandler := reminders.NewHandler(a.Reminders, a.Registry, logger)
	emailLogsHandler := emaillogs.NewHandler(a.EmailLogs, a.Registry, logger)
	recordingWebhook := recordings.NewWebhookHandler(a.Classes, a.Queue, cfg.Recording.WebhookSecret, logger)
	var objects recordings.ObjectStore
	if a.S3 != nil {
		objects = a.S3
	}
	recordingHandler := recordings.NewHandler(a.Registry, objects, logger)

	wsToken := func(token string) (policy.Caller, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return policy.Caller{}, err
		}
		return claims.Caller(), nil
	}
	wsGuard := func(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
		_, err := a.Registry.Viewable(ctx, caller, id)
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.Pool.Ping(pingCtx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := a.Redis.Ping(pingCtx).Err(); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Auth (public)
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := v1.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", middleware.RequireRole(models.RoleAdmin), authHandler.List)

		classes := api.Group("/live-classes")
		classes.POST("", middleware.RequireRole(models.RoleTeacher, models.RoleAdmin), classHandler.Create)
		classes.GET("/upcoming", classHandler.Upcoming)
		classes.GET("/course/:courseId", classHandler.ListByCourse)
		classes.GET("/:id", classHandler.GetByID)
		classes.PATCH("/:id", classHandler.Update)
		classes.DELETE("/:id", classHandler.Delete)

		// Attendance
		classes.POST("/:id/join", attendanceHandler.Join)
		classes.POST("/:id/leave", attendanceHandler.Leave)
		classes.GET("/:id/attendees", classHandler.Attendees)

		// Reminder delivery state
		classes.GET("/:id/reminders", reminderHandler.ListByLiveClass)
		classes.GET("/:id/emails", emailLogsHandler.ListByLiveClass)

		// Recordings
		classes.POST("/:id/recording/upload-url", recordingHandler.UploadURL)
		classes.POST("/:id/recording/complete", recordingHandler.Complete)
		classes.GET("/:id/recording/download-url", recordingHandler.DownloadURL)
	}

	// Webhooks (no JWT; shared secret checked in handler)
	router.POST("/webhooks/recording-ready", recordingWebhook.RecordingReady)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(a.Hub, logger, wsToken, wsGuard))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background jobs, when not left to cmd/worker
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	defer jobsCancel()
	jobsDone := make(chan struct{})
	if cfg.Scheduler.InProcess {
		runner := worker.NewRunner(logger, a.Loops()...)
		go func() {
			defer close(jobsDone)
			runner.Run(jobsCtx)
		}()
		logger.Info("in-process scheduler started", zap.Strings("jobs", runner.Names()))
	} else {
		close(jobsDone)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	jobsCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	select {
	case <-jobsDone:
	case <-shutdownCtx.Done():
		logger.Warn("background jobs did not stop in time")
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
