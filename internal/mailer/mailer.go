// Package mailer dispatches transactional email jobs. Delivery is
// owned by a downstream worker; this core only enqueues jobs, and
// callers treat failures as best-effort.
package mailer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dogevents/platform/internal/domain"
	"github.com/dogevents/platform/internal/infra"
)

// Template names understood by the delivery worker.
const (
	TemplateReceipt      = "receipt"
	TemplateRegistration = "registration"
	TemplateRefund       = "refund"
)

// Mailer enqueues templated email jobs.
type Mailer interface {
	SendTemplated(ctx context.Context, template, language string, to []string, data map[string]any) error
}

// Job is the message published for each email.
type Job struct {
	Template  string         `json:"template"`
	Language  string         `json:"language"`
	To        []string       `json:"to"`
	Data      map[string]any `json:"data,omitempty"`
	QueuedAt  time.Time      `json:"queued_at"`
}

// KafkaMailer publishes email jobs to a Kafka topic.
type KafkaMailer struct {
	producer *infra.KafkaProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaMailer creates a mailer over the given producer. A disabled
// producer makes every send a logged no-op.
func NewKafkaMailer(producer *infra.KafkaProducer, topic string, logger *slog.Logger) *KafkaMailer {
	if topic == "" {
		topic = "payments.email"
	}
	return &KafkaMailer{producer: producer, topic: topic, logger: logger}
}

func (m *KafkaMailer) SendTemplated(ctx context.Context, template, language string, to []string, data map[string]any) error {
	if language == "" {
		language = "fi"
	}
	job := Job{
		Template: template,
		Language: language,
		To:       to,
		Data:     data,
		QueuedAt: time.Now(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	key := []byte(template)
	if len(to) > 0 {
		key = []byte(to[0])
	}
	if err := m.producer.Publish(ctx, m.topic, key, payload); err != nil {
		return err
	}
	m.logger.Debug("email job queued", "template", template, "recipients", len(to))
	return nil
}

// EmailRecipients resolves the notification recipients for a
// registration: handler and owner, de-duplicated.
func EmailRecipients(reg *domain.Registration) []string {
	seen := make(map[string]bool, 2)
	var out []string
	for _, email := range []string{reg.Handler.Email, reg.Owner.Email} {
		if email != "" && !seen[email] {
			seen[email] = true
			out = append(out, email)
		}
	}
	return out
}
