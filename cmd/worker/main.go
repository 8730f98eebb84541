// Package main runs the background jobs: status sweep, reminder emails and recording imports.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-learn/backend/config"
	"github.com/aura-learn/backend/internal/app"
	"github.com/aura-learn/backend/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single pass of each job and exit")
	jobs := flag.StringSlice("jobs", nil, "jobs to run: sweeper,reminders,recordings (default all, or WORKER_JOBS)")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if !flag.CommandLine.Changed("jobs") {
		*jobs = cfg.Scheduler.Jobs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	runner, err := worker.NewRunner(logger, a.Loops()...).Select(*jobs)
	if err != nil {
		logger.Fatal("jobs", zap.Error(err))
	}

	if *once {
		if err := runner.RunOnce(ctx); err != nil {
			logger.Error("worker pass failed", zap.Error(err))
			a.Close()
			_ = logger.Sync()
			os.Exit(1)
		}
		return
	}

	logger.Info("worker started", zap.Strings("jobs", runner.Names()))
	runner.Run(ctx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
