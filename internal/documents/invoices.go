package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	docshared "github.com/odyssey-erp/odyssey-crm/internal/documents/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/modules"
	"github.com/odyssey-erp/odyssey-crm/internal/notify"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

func invoiceDates(invoiceRaw, dueRaw string) (time.Time, time.Time, error) {
	invoiceDate, err := parseDate("invoice_date", invoiceRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	dueDate, err := parseDate("due_date", dueRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if dueDate.Before(invoiceDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: due_date must not be before invoice_date", shared.ErrValidation)
	}
	return invoiceDate, dueDate, nil
}

func (req InvoiceRequest) build() (Invoice, error) {
	invoiceDate, dueDate, err := invoiceDates(req.InvoiceDate, req.DueDate)
	if err != nil {
		return Invoice{}, err
	}
	fin, err := req.price()
	if err != nil {
		return Invoice{}, err
	}
	inv := Invoice{
		InvoiceDate: invoiceDate,
		DueDate:     dueDate,
		Currency:    currencyOrDefault(req.Currency),
		ClientID:    req.ClientID,
		ProjectID:   req.ProjectID,
		Note:        req.Note,
		Terms:       req.Terms,
		Draft:       req.Draft,
		IsRecurring: req.IsRecurring,
		Financials:  fin,
	}
	if req.IsRecurring {
		inv.BillingFrequency = docshared.NormalizeBillingFrequency(req.BillingFrequency)
		if inv.BillingFrequency == nil {
			return Invoice{}, fmt.Errorf("%w: billing_frequency must be Monthly, Quarterly or Yearly", shared.ErrValidation)
		}
		inv.RecurringStartDate = &invoiceDate
	}
	return inv, nil
}

// CreateInvoice stores an invoice under the next invoice number. Invoices
// start Unpaid unless created as drafts.
func (s *Service) CreateInvoice(ctx context.Context, actor shared.Actor, req InvoiceRequest, idempotencyKey string) (Invoice, error) {
	inv, err := req.build()
	if err != nil {
		return Invoice{}, err
	}
	inv.TenantID = actor.TenantID
	inv.CreatedBy = actor.UserID

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.claimKey(ctx, tx, actor.TenantID, idempotencyKey, KindInvoice); err != nil {
			return err
		}
		return s.insertInvoice(ctx, tx, &inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.applyDerived()
	s.transitioned(KindInvoice, string(inv.Status))
	s.record(ctx, actor, modules.KeyInvoices, inv.ID, "created", map[string]any{"invoice_number": inv.Number, "total": inv.Total.String()})
	return inv, nil
}

func (s *Service) insertInvoice(ctx context.Context, tx TxRepository, inv *Invoice) error {
	_, err := s.allocate(ctx, tx, KindInvoice, inv.TenantID, func(ctx context.Context, number string) error {
		inv.Number = number
		return tx.InsertInvoice(ctx, inv)
	})
	return err
}

// UpdateInvoice applies the supplied fields to an invoice and recomputes its
// totals. Items are rewritten only when the patch carries them.
func (s *Service) UpdateInvoice(ctx context.Context, actor shared.Actor, id int64, patch InvoicePatch) (Invoice, error) {
	var next Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockInvoice(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		var replaced bool
		if next, replaced, err = patch.merge(current); err != nil {
			return err
		}
		if err := tx.UpdateInvoice(ctx, next); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if !replaced {
			return nil
		}
		return tx.ReplaceItems(ctx, KindInvoice, id, next.Items)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actor, modules.KeyInvoices, id, "updated", map[string]any{"total": next.Total.String()})
	return s.repo.GetInvoice(ctx, actor.TenantID, id)
}

func (p InvoicePatch) merge(inv Invoice) (Invoice, bool, error) {
	if p.InvoiceDate != nil {
		d, err := parseDate("invoice_date", *p.InvoiceDate)
		if err != nil {
			return Invoice{}, false, err
		}
		inv.InvoiceDate = d
	}
	if p.DueDate != nil {
		d, err := parseDate("due_date", *p.DueDate)
		if err != nil {
			return Invoice{}, false, err
		}
		inv.DueDate = d
	}
	if inv.DueDate.Before(inv.InvoiceDate) {
		return Invoice{}, false, fmt.Errorf("%w: due_date must not be before invoice_date", shared.ErrValidation)
	}
	if p.Currency != nil {
		inv.Currency = currencyOrDefault(*p.Currency)
	}
	if p.ClientID != nil {
		inv.ClientID = *p.ClientID
	}
	setID(&inv.ProjectID, p.ProjectID)
	setString(&inv.Note, p.Note)
	setString(&inv.Terms, p.Terms)
	if p.IsRecurring != nil {
		inv.IsRecurring = *p.IsRecurring
	}
	if p.BillingFrequency != nil {
		inv.BillingFrequency = docshared.NormalizeBillingFrequency(*p.BillingFrequency)
	}
	if !inv.IsRecurring {
		inv.BillingFrequency = nil
	} else if inv.BillingFrequency == nil {
		return Invoice{}, false, fmt.Errorf("%w: billing_frequency must be Monthly, Quarterly or Yearly", shared.ErrValidation)
	}
	fin, replaced, err := p.apply(inv.Financials)
	if err != nil {
		return Invoice{}, false, err
	}
	inv.Financials = fin
	inv.applyDerived()
	return inv, replaced, nil
}

// GetInvoice returns an invoice with its derived payment status.
func (s *Service) GetInvoice(ctx context.Context, tenantID, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, tenantID, id)
}

// ListInvoices returns a page of invoices. The status filter matches the derived status.
func (s *Service) ListInvoices(ctx context.Context, tenantID int64, filter ListFilter) ([]Invoice, shared.Pagination, error) {
	filter = normalizeFilter(filter)
	if filter.Status != "" {
		status, err := parseInvoiceStatus(filter.Status)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		filter.Status = string(status)
	}
	items, total, err := s.repo.ListInvoices(ctx, tenantID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, page(filter, total), nil
}

var invoiceStatuses = []InvoiceStatus{InvoiceDraft, InvoiceUnpaid, InvoicePartiallyPaid, InvoiceFullyPaid, InvoiceCredited}

func parseInvoiceStatus(raw string) (InvoiceStatus, error) {
	raw = strings.TrimSpace(raw)
	for _, s := range invoiceStatuses {
		if strings.EqualFold(string(s), raw) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: invalid invoice status %q, must be one of: %s", shared.ErrValidation, raw, join(invoiceStatuses))
}

// DeleteInvoice soft-deletes an invoice.
func (s *Service) DeleteInvoice(ctx context.Context, actor shared.Actor, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDelete(ctx, KindInvoice, actor.TenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, modules.KeyInvoices, id, "deleted", nil)
	return nil
}

// SendInvoice publishes a draft as Unpaid, stamps sent_at and emails the client.
func (s *Service) SendInvoice(ctx context.Context, actor shared.Actor, id int64, to string) (Invoice, Warnings, error) {
	var wasDraft bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		wasDraft = inv.Draft
		return tx.MarkInvoiceSent(ctx, actor.TenantID, id, s.now().UTC())
	})
	if err != nil {
		return Invoice{}, nil, err
	}
	inv, err := s.repo.GetInvoice(ctx, actor.TenantID, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	if wasDraft {
		s.transitioned(KindInvoice, string(inv.Status))
	}
	s.record(ctx, actor, modules.KeyInvoices, id, "sent", map[string]any{"was_draft": wasDraft})
	clientID := inv.ClientID
	notice := notify.Notice{
		Kind:         notify.KindInvoiceSent,
		TenantID:     inv.TenantID,
		DocumentType: string(KindInvoice),
		DocumentID:   inv.ID,
		Number:       inv.Number,
		Amount:       inv.Total,
		Currency:     inv.Currency,
	}
	return inv, s.notify(ctx, notice, &clientID, to), nil
}

// recurrence returns the spacing between invoices and the payment window of each.
func recurrence(f docshared.BillingFrequency) (months int, dueDays int) {
	switch f {
	case docshared.FrequencyQuarterly:
		return 3, 90
	case docshared.FrequencyYearly:
		return 12, 365
	default:
		return 1, 30
	}
}

// CreateRecurringInvoices creates the whole run of a recurring schedule in
// one transaction.
func (s *Service) CreateRecurringInvoices(ctx context.Context, actor shared.Actor, req RecurringRequest) ([]Invoice, error) {
	frequency := docshared.NormalizeBillingFrequency(req.BillingFrequency)
	if frequency == nil {
		return nil, fmt.Errorf("%w: billing_frequency must be Monthly, Quarterly or Yearly", shared.ErrValidation)
	}
	start, err := parseDate("recurring_start_date", req.RecurringStartDate)
	if err != nil {
		return nil, err
	}
	if req.RecurringTotalCount <= 0 {
		return nil, fmt.Errorf("%w: recurring_total_count must be positive", shared.ErrValidation)
	}
	items, err := toLineItems(req.Items)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	totals := docshared.ComputeTotals(items, decimal.Zero, docshared.DiscountPercent)
	months, dueDays := recurrence(*frequency)
	count := req.RecurringTotalCount

	invoices := make([]Invoice, 0, count)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoices = invoices[:0]
		for i := 0; i < count; i++ {
			date := start.AddDate(0, i*months, 0)
			inv := Invoice{
				TenantID:            actor.TenantID,
				InvoiceDate:         date,
				DueDate:             date.AddDate(0, 0, dueDays),
				Currency:            currencyOrDefault(req.Currency),
				ClientID:            req.ClientID,
				IsRecurring:         true,
				BillingFrequency:    frequency,
				RecurringStartDate:  &start,
				RecurringTotalCount: &count,
				Financials: Financials{
					Items:        items,
					Discount:     decimal.Zero,
					DiscountType: docshared.DiscountPercent,
					Totals:       totals,
				},
				CreatedBy: actor.UserID,
			}
			if err := s.insertInvoice(ctx, tx, &inv); err != nil {
				return err
			}
			inv.applyDerived()
			invoices = append(invoices, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		s.record(ctx, actor, modules.KeyInvoices, inv.ID, "created", map[string]any{"invoice_number": inv.Number, "recurring": true})
	}
	return invoices, nil
}
