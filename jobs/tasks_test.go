package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
)

type recordingMailer struct {
	sent []SendEmailPayload
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestNewSendEmailTaskRequiresRecipient(t *testing.T) {
	_, err := NewSendEmailTask(SendEmailPayload{Subject: "hi"})
	assert.Error(t, err)

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "hi", Kind: "contract_accepted", DocumentID: 9})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())

	var decoded SendEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, int64(9), decoded.DocumentID)
}

func TestEmailHandlerDelivers(t *testing.T) {
	mailer := &recordingMailer{}
	h := NewEmailHandler(mailer, nil)
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "Contract accepted"})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Contract accepted", mailer.sent[0].Subject)
}

func TestEmailHandlerSkipsRetryOnBadPayload(t *testing.T) {
	h := NewEmailHandler(&recordingMailer{}, nil)
	err := h.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailHandlerRetriesDeliveryFailure(t *testing.T) {
	h := NewEmailHandler(&recordingMailer{err: errors.New("relay down")}, nil)
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com"})
	require.NoError(t, err)
	err = h.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSMTPMailerFormatsMessage(t *testing.T) {
	m := NewSMTPMailer("localhost", 1025, "crm@example.com")
	var gotAddr string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		return nil
	}
	require.NoError(t, m.Send(context.Background(), SendEmailPayload{To: "c@example.com", Subject: "Invoice INV#001", Body: "Hello"}))
	assert.Equal(t, "localhost:1025", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: Invoice INV#001\r\n")
	assert.Contains(t, string(gotMsg), "\r\n\r\nHello")
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, "notifications", nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"notifications","pending":0,"retry":0}`, rec.Body.String())
}

func TestEmailHandlerTracksDeliveries(t *testing.T) {
	registry := prometheus.NewRegistry()
	h := NewEmailHandler(&recordingMailer{}, nil).WithMetrics(jobmetrics.NewMetrics(registry))
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), task))

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "crm_jobs_total")
	assert.Contains(t, names, "crm_job_duration_seconds")
}
