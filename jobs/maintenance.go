package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/campusgrid/campusgrid/internal/jobs"
	"github.com/campusgrid/campusgrid/internal/shared"
)

const (
	// TaskMaintenanceCleanup prunes expired sessions and idempotency keys.
	TaskMaintenanceCleanup = "maintenance:cleanup"
	// TaskAuditRetention trims audit entries outside the retention window.
	TaskAuditRetention = "audit:retention"
)

// MaintenancePayload tunes the cleanup window.
type MaintenancePayload struct {
	IdempotencyMaxAge time.Duration `json:"idempotency_max_age"`
}

// NewMaintenanceTask builds the cleanup task.
func NewMaintenanceTask(payload MaintenancePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaintenanceCleanup, body, asynq.Queue(QueueDefault)), nil
}

// AuditRetentionPayload carries the retention window.
type AuditRetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditRetentionTask builds the retention task.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, body, asynq.Queue(QueueDefault)), nil
}

// SessionPurger removes expired session rows, implemented by the auth service.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// MaintenanceJob owns the periodic database cleanups.
type MaintenanceJob struct {
	Sessions SessionPurger
	Idem     *shared.IdempotencyStore
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewMaintenanceJob initialises the cleanup handler.
func NewMaintenanceJob(sessions SessionPurger, idem *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *MaintenanceJob {
	return &MaintenanceJob{Sessions: sessions, Idem: idem, Logger: logger, Metrics: metrics}
}

// HandleCleanup removes expired sessions and stale idempotency keys.
func (j *MaintenanceJob) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("maintenance: handler not configured")
	}
	var payload MaintenancePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.IdempotencyMaxAge <= 0 {
		payload.IdempotencyMaxAge = 24 * time.Hour
	}

	tracker := j.Metrics.Track(TaskMaintenanceCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Sessions.PurgeExpiredSessions(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("purge sessions", slog.Any("error", err))
		return resultErr
	}
	if j.Idem != nil {
		if err := j.Idem.Cleanup(ctx, payload.IdempotencyMaxAge); err != nil {
			resultErr = err
			j.logger().Error("purge idempotency keys", slog.Any("error", err))
			return resultErr
		}
	}
	j.logger().Info("maintenance cleanup done", slog.Int64("sessions_removed", removed))
	return nil
}

// AuditPurger trims audit history, implemented by the audit service.
type AuditPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// AuditRetentionJob trims the audit timeline.
type AuditRetentionJob struct {
	Purger  AuditPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRetentionJob initialises the retention handler.
func NewAuditRetentionJob(purger AuditPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionJob {
	return &AuditRetentionJob{Purger: purger, Logger: logger, Metrics: metrics}
}

// Handle removes audit entries older than the configured retention.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("audit retention: handler not configured")
	}
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 365 * 24 * time.Hour
	}

	tracker := j.Metrics.Track(TaskAuditRetention)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Purger.Purge(ctx, payload.Retention)
	if err != nil {
		resultErr = err
		j.logger().Error("audit retention", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("audit retention done", slog.Int64("removed", removed))
	return nil
}

func (j *MaintenanceJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *AuditRetentionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
