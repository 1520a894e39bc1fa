package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campusgrid/campusgrid/internal/app"
	"github.com/campusgrid/campusgrid/internal/audit"
	"github.com/campusgrid/campusgrid/internal/auth"
	jobmetrics "github.com/campusgrid/campusgrid/internal/jobs"
	"github.com/campusgrid/campusgrid/internal/platform/db"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	mailer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailer.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	releaseJob := jobs.NewGradeReleaseJob(pool, mailer, logger, metrics)

	idempotencyStore := shared.NewIdempotencyStore(pool)
	authService := auth.NewService(auth.NewRepository(pool), nil)
	maintenanceJob := jobs.NewMaintenanceJob(authService, idempotencyStore, logger, metrics)

	auditService := audit.NewService(audit.NewRepository(pool), logger)
	retentionJob := jobs.NewAuditRetentionJob(auditService, logger, metrics)

	maintenanceTask, err := jobs.NewMaintenanceTask(jobs.MaintenancePayload{IdempotencyMaxAge: 24 * time.Hour})
	if err != nil {
		logger.Error("build maintenance task", slog.Any("error", err))
		os.Exit(1)
	}
	retentionTask, err := jobs.NewAuditRetentionTask(jobs.AuditRetentionPayload{Retention: cfg.AuditRetention})
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGradeReleaseNotify, Handler: releaseJob.Handle},
			{Type: jobs.TaskMaintenanceCleanup, Handler: maintenanceJob.HandleCleanup},
			{Type: jobs.TaskAuditRetention, Handler: retentionJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 1 * * *", Task: maintenanceTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 2 * * 0", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
