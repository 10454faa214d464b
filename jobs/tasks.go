package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCatalog carries catalog sync passes so mail never waits behind them.
	QueueCatalog = "catalog"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewSendEmailHandler processes TaskTypeSendEmail tasks. Delivery is handed to
// the log until an SMTP relay is configured for the deployment.
func NewSendEmailHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if strings.TrimSpace(payload.To) == "" {
			return asynq.SkipRetry
		}
		logger.InfoContext(ctx, "send email",
			slog.String("to", payload.To),
			slog.String("subject", payload.Subject),
			slog.Int("body_bytes", len(payload.Body)),
		)
		return nil
	}
}
