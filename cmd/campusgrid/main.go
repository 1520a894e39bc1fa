package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campusgrid/campusgrid/internal/app"
	"github.com/campusgrid/campusgrid/internal/audit"
	audithttp "github.com/campusgrid/campusgrid/internal/audit/http"
	"github.com/campusgrid/campusgrid/internal/auth"
	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/directory"
	"github.com/campusgrid/campusgrid/internal/fees"
	"github.com/campusgrid/campusgrid/internal/grades"
	"github.com/campusgrid/campusgrid/internal/observability"
	"github.com/campusgrid/campusgrid/internal/platform/cache"
	"github.com/campusgrid/campusgrid/internal/platform/db"
	"github.com/campusgrid/campusgrid/internal/schools"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/internal/users"
	"github.com/campusgrid/campusgrid/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "campusgrid_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	loginLimiter := shared.NewRateLimiter(redisClient, "login", cfg.LoginRateLimit, cfg.LoginRateWindow)

	authzMW := authz.Middleware{Logger: logger, Metrics: metrics}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, loginLimiter)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	dir := directory.NewCachedDirectory(directory.NewRepository(dbpool), redisClient, cfg.DirectoryCacheTTL)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, authzMW)

	schoolsRepo := schools.NewRepository(dbpool)
	schoolsService := schools.NewService(schoolsRepo, auditLogger, logger)
	schoolsHandler := schools.NewHandler(logger, schoolsService, authzMW)

	gradesRepo := grades.NewRepository(dbpool)
	gradesService := grades.NewService(gradesRepo, dir, approvalRecorder, auditLogger, idempotencyStore, jobClient, logger)
	gradesHandler := grades.NewHandler(logger, gradesService, authzMW)

	feesRepo := fees.NewRepository(dbpool)
	feesService := fees.NewService(feesRepo, dir, auditLogger, logger)
	feesHandler := fees.NewHandler(logger, feesService, authzMW)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo, logger)
	auditHandler := audithttp.NewHandler(logger, auditService, authzMW)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthzMW:        authzMW,
		AuthHandler:    authHandler,
		UsersHandler:   usersHandler,
		SchoolsHandler: schoolsHandler,
		GradesHandler:  gradesHandler,
		FeesHandler:    feesHandler,
		AuditHandler:   auditHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
