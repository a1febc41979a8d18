package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To           string `json:"to"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	Kind         string `json:"kind,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	DocumentID   int64  `json:"document_id,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if strings.TrimSpace(payload.To) == "" {
		return nil, errors.New("send email: recipient required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, opts...), nil
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds a mailer for host:port.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{
		Addr: net.JoinHostPort(host, strconv.Itoa(port)),
		From: from,
		send: smtp.SendMail,
	}
}

// Send writes the message to the relay.
func (m *SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)
	return m.send(m.Addr, nil, m.From, []string{msg.To}, []byte(b.String()))
}

// EmailHandler processes TaskTypeSendEmail tasks.
type EmailHandler struct {
	mailer  Mailer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewEmailHandler wires the mailer used for delivery.
func NewEmailHandler(mailer Mailer, logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{mailer: mailer, logger: logger}
}

// WithMetrics records each delivery attempt.
func (h *EmailHandler) WithMetrics(m *jobmetrics.Metrics) *EmailHandler {
	h.metrics = m
	return h
}

// Handle decodes the payload and delivers it. Malformed payloads are not retried.
func (h *EmailHandler) Handle(ctx context.Context, t *asynq.Task) error {
	return h.metrics.Track(TaskTypeSendEmail).End(h.deliver(ctx, t))
}

func (h *EmailHandler) deliver(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode mail payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("mail payload without recipient: %w", asynq.SkipRetry)
	}
	if err := h.mailer.Send(ctx, payload); err != nil {
		h.logger.Warn("send email",
			slog.String("kind", payload.Kind),
			slog.Int64("document_id", payload.DocumentID),
			slog.Any("error", err))
		return err
	}
	h.logger.Info("email sent",
		slog.String("kind", payload.Kind),
		slog.String("document_type", payload.DocumentType),
		slog.Int64("document_id", payload.DocumentID))
	return nil
}
