package jobs

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue all campusgrid jobs run on.
	QueueDefault = "default"
	// TaskTypeSendEmail delivers transactional mail to guardians and staff.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload carries one outbound message.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask builds a mail delivery task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault)), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// TODO: wire an SMTP transport; logging the delivery is enough for now.
	slog.Info("send email", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}
