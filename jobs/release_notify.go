package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/campusgrid/campusgrid/internal/jobs"
)

const (
	// TaskGradeReleaseNotify fans released grades out to parent mailboxes.
	TaskGradeReleaseNotify = "grades:release_notify"
)

// GradeReleasePayload identifies the released records to notify about.
type GradeReleasePayload struct {
	SchoolID  uuid.UUID   `json:"school_id"`
	RecordIDs []uuid.UUID `json:"record_ids"`
}

// NewGradeReleaseTask builds a release notification task.
func NewGradeReleaseTask(payload GradeReleasePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGradeReleaseNotify, body, asynq.Queue(QueueDefault)), nil
}

// EmailEnqueuer submits follow-up mail tasks.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// GradeReleaseJob notifies parents when grades for their children go out.
type GradeReleaseJob struct {
	Pool    *pgxpool.Pool
	Mailer  EmailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGradeReleaseJob initialises the release notification handler.
func NewGradeReleaseJob(pool *pgxpool.Pool, mailer EmailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *GradeReleaseJob {
	return &GradeReleaseJob{Pool: pool, Mailer: mailer, Logger: logger, Metrics: metrics}
}

type parentNotification struct {
	Email       string
	ParentName  string
	StudentName string
	Term        string
}

// Handle executes the notification fan-out.
func (j *GradeReleaseJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("grade release notify: handler not configured")
	}
	var payload GradeReleasePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.RecordIDs) == 0 {
		return nil
	}

	tracker := j.metrics().Track(TaskGradeReleaseNotify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("school_id", payload.SchoolID.String()),
		slog.Int("records", len(payload.RecordIDs)),
	)
	logger.Info("starting grade release notification")

	notifications, err := j.collect(ctx, payload.RecordIDs)
	if err != nil {
		resultErr = err
		logger.Error("collect recipients", slog.Any("error", err))
		return resultErr
	}
	sent := 0
	for _, n := range notifications {
		if n.Email == "" {
			continue
		}
		mail := SendEmailPayload{
			To:      n.Email,
			Subject: fmt.Sprintf("Grades released for %s (%s)", n.StudentName, n.Term),
			Body:    fmt.Sprintf("Hello %s, new grades for %s are now available in CampusGrid.", n.ParentName, n.StudentName),
		}
		if j.Mailer == nil {
			logger.Info("notify parent", slog.String("email", n.Email))
			sent++
			continue
		}
		if _, err := j.Mailer.EnqueueSendEmail(ctx, mail); err != nil {
			logger.Warn("enqueue mail", slog.String("email", n.Email), slog.Any("error", err))
			continue
		}
		sent++
	}
	j.metrics().AddNotifications(TaskGradeReleaseNotify, sent)
	logger.Info("grade release notification done", slog.Int("sent", sent))
	return nil
}

// collect resolves one notification row per parent per released record.
func (j *GradeReleaseJob) collect(ctx context.Context, recordIDs []uuid.UUID) ([]parentNotification, error) {
	rows, err := j.Pool.Query(ctx, `
SELECT u.email, u.name, s.name, g.term
FROM grade_records g
JOIN students s ON s.id = g.student_id
JOIN parent_students ps ON ps.student_id = g.student_id
JOIN users u ON u.id = ps.parent_id AND u.is_active
WHERE g.id = ANY($1) AND g.status = 'RELEASED'`, recordIDs)
	if err != nil {
		return nil, fmt.Errorf("jobs: release recipients: %w", err)
	}
	defer rows.Close()
	out := make([]parentNotification, 0)
	for rows.Next() {
		var n parentNotification
		if err := rows.Scan(&n.Email, &n.ParentName, &n.StudentName, &n.Term); err != nil {
			return nil, fmt.Errorf("jobs: scan recipient: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (j *GradeReleaseJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *GradeReleaseJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
