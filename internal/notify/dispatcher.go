// Package notify enqueues best-effort document notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/jobs"
)

// Kind identifies the notification template.
type Kind string

const (
	KindContractSent     Kind = "contract_sent"
	KindContractAccepted Kind = "contract_accepted"
	KindContractRejected Kind = "contract_rejected"
	KindInvoiceSent      Kind = "invoice_sent"
	KindEstimateSent     Kind = "estimate_sent"
)

// Notice describes the document a notification is about.
type Notice struct {
	Kind         Kind
	TenantID     int64
	DocumentType string
	DocumentID   int64
	Number       string
	Title        string
	Amount       decimal.Decimal
	Currency     string
	Recipient    string
}

// Enqueuer submits mail tasks.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Counter records enqueue outcomes.
type Counter interface {
	Notification(kind string, ok bool)
}

// Dispatcher turns notices into mail tasks.
type Dispatcher struct {
	queue   Enqueuer
	counter Counter
	logger  *slog.Logger
}

// NewDispatcher builds a dispatcher. counter may be nil.
func NewDispatcher(queue Enqueuer, counter Counter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{queue: queue, counter: counter, logger: logger}
}

// Send enqueues the notice. Every failure is reported as shared.ErrDependency.
func (d *Dispatcher) Send(ctx context.Context, n Notice) error {
	err := d.send(ctx, n)
	if d.counter != nil {
		d.counter.Notification(string(n.Kind), err == nil)
	}
	if err != nil {
		d.logger.Warn("notification not enqueued",
			slog.String("kind", string(n.Kind)),
			slog.Int64("document_id", n.DocumentID),
			slog.Any("error", err))
	}
	return err
}

func (d *Dispatcher) send(ctx context.Context, n Notice) error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("%w: notification queue not configured", shared.ErrDependency)
	}
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: %s %d has no recipient email", shared.ErrDependency, n.DocumentType, n.DocumentID)
	}
	payload := jobs.SendEmailPayload{
		To:           n.Recipient,
		Subject:      Subject(n),
		Body:         Body(n),
		Kind:         string(n.Kind),
		DocumentType: n.DocumentType,
		DocumentID:   n.DocumentID,
	}
	taskID := uuid.NewString()
	if _, err := d.queue.EnqueueSendEmail(ctx, payload, asynq.TaskID(taskID)); err != nil {
		return fmt.Errorf("%w: enqueue %s: %v", shared.ErrDependency, n.Kind, err)
	}
	return nil
}

// Subject renders the mail subject line.
func Subject(n Notice) string {
	ref := n.Number
	if n.Title != "" {
		ref = fmt.Sprintf("%s (%s)", n.Number, n.Title)
	}
	switch n.Kind {
	case KindContractSent:
		return "Contract " + ref + " is ready for review"
	case KindContractAccepted:
		return "Contract " + ref + " accepted"
	case KindContractRejected:
		return "Contract " + ref + " rejected"
	case KindInvoiceSent:
		return "Invoice " + ref
	case KindEstimateSent:
		return "Estimate " + ref
	}
	return "Document " + ref
}

// Body renders the plain text mail body.
func Body(n Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", Subject(n))
	fmt.Fprintf(&b, "Reference: %s\n", n.Number)
	amount := n.Amount.StringFixed(2)
	if n.Currency != "" {
		amount = n.Currency + " " + amount
	}
	fmt.Fprintf(&b, "Amount: %s\n", amount)
	return b.String()
}
