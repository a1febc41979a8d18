package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/jobs"
)

type fakeQueue struct {
	payloads []jobs.SendEmailPayload
	opts     [][]asynq.Option
	err      error
}

func (q *fakeQueue) EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.payloads = append(q.payloads, payload)
	q.opts = append(q.opts, opts)
	return &asynq.TaskInfo{}, nil
}

type counter struct{ ok, failed int }

func (c *counter) Notification(kind string, ok bool) {
	if ok {
		c.ok++
		return
	}
	c.failed++
}

func acceptedNotice() Notice {
	return Notice{
		Kind:         KindContractAccepted,
		TenantID:     1,
		DocumentType: "contract",
		DocumentID:   4,
		Number:       "CONTRACT#004",
		Title:        "Support retainer",
		Amount:       decimal.RequireFromString("1500"),
		Currency:     "USD",
		Recipient:    "client@example.com",
	}
}

func TestSendEnqueuesMail(t *testing.T) {
	q := &fakeQueue{}
	c := &counter{}
	d := NewDispatcher(q, c, nil)

	require.NoError(t, d.Send(context.Background(), acceptedNotice()))
	require.Len(t, q.payloads, 1)
	p := q.payloads[0]
	assert.Equal(t, "client@example.com", p.To)
	assert.Equal(t, "Contract CONTRACT#004 (Support retainer) accepted", p.Subject)
	assert.Contains(t, p.Body, "Amount: USD 1500.00")
	assert.Equal(t, "contract_accepted", p.Kind)
	assert.Len(t, q.opts[0], 1)
	assert.Equal(t, 1, c.ok)
}

func TestSendFailuresAreDependencyErrors(t *testing.T) {
	c := &counter{}
	d := NewDispatcher(&fakeQueue{err: errors.New("redis: connection refused")}, c, nil)
	err := d.Send(context.Background(), acceptedNotice())
	assert.ErrorIs(t, err, shared.ErrDependency)

	n := acceptedNotice()
	n.Recipient = ""
	err = NewDispatcher(&fakeQueue{}, c, nil).Send(context.Background(), n)
	assert.ErrorIs(t, err, shared.ErrDependency)

	err = NewDispatcher(nil, c, nil).Send(context.Background(), acceptedNotice())
	assert.ErrorIs(t, err, shared.ErrDependency)
	assert.Equal(t, 3, c.failed)
}

func TestSubjects(t *testing.T) {
	n := Notice{Number: "INV#007"}
	for kind, want := range map[Kind]string{
		KindInvoiceSent:      "Invoice INV#007",
		KindEstimateSent:     "Estimate INV#007",
		KindContractRejected: "Contract INV#007 rejected",
		Kind("other"):        "Document INV#007",
	} {
		n.Kind = kind
		assert.Equal(t, want, Subject(n))
	}
}
