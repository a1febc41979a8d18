// Package documents implements the contract, invoice and estimate lifecycles.
package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-crm/internal/documents/numbering"
	"github.com/odyssey-erp/odyssey-crm/internal/notify"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Notifier dispatches best-effort document notifications.
type Notifier interface {
	Send(ctx context.Context, n notify.Notice) error
}

// Metrics receives lifecycle counters. observability.Metrics satisfies it.
type Metrics interface {
	NumberingFallback(document string)
	Transition(document, status string)
}

// Warnings are non-fatal problems reported alongside a successful result.
type Warnings []string

// Option configures a Service.
type Option func(*Service)

// WithNumberingAttempts bounds sequential number candidates before the timestamp fallback.
func WithNumberingAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the service time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service orchestrates document workflows.
type Service struct {
	repo        Repository
	notifier    Notifier
	metrics     Metrics
	activity    shared.ActivityRecorder
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewService constructs the document service. notifier, metrics and activity may be nil.
func NewService(repo Repository, notifier Notifier, metrics Metrics, activity shared.ActivityRecorder, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:        repo,
		notifier:    notifier,
		metrics:     metrics,
		activity:    activity,
		logger:      logger,
		maxAttempts: numbering.DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// allocate numbers a new document inside tx. claim must insert the document.
func (s *Service) allocate(ctx context.Context, tx TxRepository, kind Kind, tenantID int64, claim numbering.ClaimFunc) (string, error) {
	rule := numberingRules[kind]
	gen := numbering.NewGenerator(rule.format, rule.global, tx.Numbers(kind),
		numbering.WithMaxAttempts(s.maxAttempts),
		numbering.WithClock(s.now),
		numbering.WithFallbackHook(func(prefix string) {
			s.logger.Warn("document numbering fell back to timestamp",
				slog.String("document", string(kind)),
				slog.String("prefix", prefix),
				slog.Int64("company_id", tenantID))
			if s.metrics != nil {
				s.metrics.NumberingFallback(string(kind))
			}
		}))
	number, err := gen.Allocate(ctx, tenantID, claim)
	if err != nil {
		return "", fmt.Errorf("allocate %s number: %w", kind, err)
	}
	return number, nil
}

func (s *Service) claimKey(ctx context.Context, tx TxRepository, tenantID int64, key string, kind Kind) error {
	if key == "" {
		return nil
	}
	return tx.ClaimIdempotencyKey(ctx, tenantID, key, kind)
}

func (s *Service) transitioned(kind Kind, status string) {
	if s.metrics != nil {
		s.metrics.Transition(string(kind), status)
	}
}

// notify sends n after resolving its recipient. Failures become warnings.
func (s *Service) notify(ctx context.Context, n notify.Notice, clientID *int64, override string) Warnings {
	if s.notifier == nil {
		return nil
	}
	recipient := override
	if recipient == "" && clientID != nil {
		email, err := s.repo.ClientEmail(ctx, n.TenantID, *clientID)
		if err != nil {
			s.logger.Warn("resolve notification recipient",
				slog.Int64("client_id", *clientID),
				slog.Any("error", err))
			return Warnings{fmt.Sprintf("%s notification not sent: recipient lookup failed", n.Kind)}
		}
		recipient = email
	}
	n.Recipient = recipient
	if err := s.notifier.Send(ctx, n); err != nil {
		return Warnings{fmt.Sprintf("%s notification not sent: %v", n.Kind, err)}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, module string, id int64, action string, meta map[string]any) {
	shared.RecordQuietly(ctx, s.activity, s.logger, shared.Activity{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Module:   module,
		ModuleID: id,
		Action:   action,
		Meta:     meta,
	})
}

func page(filter ListFilter, total int) shared.Pagination {
	return shared.NewPagination(filter.Page, filter.PerPage, total)
}

func normalizeFilter(filter ListFilter) ListFilter {
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	return filter
}
