package documents

import (
	"context"
	"fmt"
	"time"

	docshared "github.com/odyssey-erp/odyssey-crm/internal/documents/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/modules"
	"github.com/odyssey-erp/odyssey-crm/internal/notify"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

func (req EstimateRequest) build() (Estimate, error) {
	validTill, err := parseOptionalDate("valid_till", req.ValidTill)
	if err != nil {
		return Estimate{}, err
	}
	fin, err := req.price()
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		ValidTill:  validTill,
		Currency:   currencyOrDefault(req.Currency),
		ClientID:   req.ClientID,
		ProjectID:  req.ProjectID,
		Note:       req.Note,
		Terms:      req.Terms,
		Financials: fin,
	}, nil
}

// CreateEstimate stores an estimate under the next global estimate number.
// New estimates are Draft unless Sent is requested.
func (s *Service) CreateEstimate(ctx context.Context, actor shared.Actor, req EstimateRequest, idempotencyKey string) (Estimate, error) {
	e, err := req.build()
	if err != nil {
		return Estimate{}, err
	}
	e.Status = EstimateDraft
	if req.Status != "" {
		status, err := ParseEstimateStatus(req.Status)
		if err != nil {
			return Estimate{}, err
		}
		if status != EstimateDraft && status != EstimateSent {
			return Estimate{}, fmt.Errorf("%w: new estimates must be %s or %s", shared.ErrValidation, EstimateDraft, EstimateSent)
		}
		e.Status = status
	}
	if e.Status == EstimateSent {
		now := s.now().UTC()
		e.SentAt = &now
	}
	e.TenantID = actor.TenantID
	e.CreatedBy = actor.UserID

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.claimKey(ctx, tx, actor.TenantID, idempotencyKey, KindEstimate); err != nil {
			return err
		}
		_, err := s.allocate(ctx, tx, KindEstimate, actor.TenantID, func(ctx context.Context, number string) error {
			e.Number = number
			return tx.InsertEstimate(ctx, &e)
		})
		return err
	})
	if err != nil {
		return Estimate{}, err
	}
	s.transitioned(KindEstimate, string(e.Status))
	s.record(ctx, actor, modules.KeyEstimates, e.ID, "created", map[string]any{"estimate_number": e.Number, "total": e.Total.String()})
	return e, nil
}

// UpdateEstimate applies the supplied fields to an estimate and recomputes its
// totals. Items are rewritten only when the patch carries them. A status in the
// patch is applied as a lifecycle transition in the same transaction.
func (s *Service) UpdateEstimate(ctx context.Context, actor shared.Actor, id int64, patch EstimatePatch) (Estimate, error) {
	var target EstimateStatus
	if patch.Status != "" {
		var err error
		if target, err = ParseEstimateStatus(patch.Status); err != nil {
			return Estimate{}, err
		}
	}
	var from EstimateStatus
	var next Estimate
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockEstimate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		from = current.Status
		var replaced bool
		if next, replaced, err = patch.merge(current); err != nil {
			return err
		}
		if err := tx.UpdateEstimate(ctx, next); err != nil {
			return fmt.Errorf("update estimate: %w", err)
		}
		if replaced {
			if err := tx.ReplaceItems(ctx, KindEstimate, id, next.Items); err != nil {
				return err
			}
		}
		if target == "" || target == from {
			return nil
		}
		return s.setEstimateStatus(ctx, tx, current, target)
	})
	if err != nil {
		return Estimate{}, err
	}
	if target != "" && target != from {
		s.transitioned(KindEstimate, string(target))
	}
	s.record(ctx, actor, modules.KeyEstimates, id, "updated", map[string]any{"total": next.Total.String()})
	return s.repo.GetEstimate(ctx, actor.TenantID, id)
}

func (p EstimatePatch) merge(e Estimate) (Estimate, bool, error) {
	if p.ValidTill != nil {
		d, err := parseOptionalDate("valid_till", *p.ValidTill)
		if err != nil {
			return Estimate{}, false, err
		}
		e.ValidTill = d
	}
	if p.Currency != nil {
		e.Currency = currencyOrDefault(*p.Currency)
	}
	setID(&e.ClientID, p.ClientID)
	setID(&e.ProjectID, p.ProjectID)
	setString(&e.Note, p.Note)
	setString(&e.Terms, p.Terms)
	fin, replaced, err := p.apply(e.Financials)
	if err != nil {
		return Estimate{}, false, err
	}
	e.Financials = fin
	return e, replaced, nil
}

func (s *Service) setEstimateStatus(ctx context.Context, tx TxRepository, e Estimate, to EstimateStatus) error {
	if err := estimateLifecycle.check(e.Status, to); err != nil {
		return err
	}
	var sentAt *time.Time
	if to == EstimateSent {
		now := s.now().UTC()
		sentAt = &now
	}
	if err := tx.SetEstimateStatus(ctx, e.TenantID, e.ID, to, sentAt); err != nil {
		return fmt.Errorf("update estimate status: %w", err)
	}
	return nil
}

// GetEstimate returns an estimate with its items.
func (s *Service) GetEstimate(ctx context.Context, tenantID, id int64) (Estimate, error) {
	return s.repo.GetEstimate(ctx, tenantID, id)
}

// ListEstimates returns a page of estimates.
func (s *Service) ListEstimates(ctx context.Context, tenantID int64, filter ListFilter) ([]Estimate, shared.Pagination, error) {
	filter = normalizeFilter(filter)
	if filter.Status != "" {
		status, err := ParseEstimateStatus(filter.Status)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		filter.Status = string(status)
	}
	items, total, err := s.repo.ListEstimates(ctx, tenantID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, page(filter, total), nil
}

// DeleteEstimate soft-deletes an estimate.
func (s *Service) DeleteEstimate(ctx context.Context, actor shared.Actor, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDelete(ctx, KindEstimate, actor.TenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, modules.KeyEstimates, id, "deleted", nil)
	return nil
}

// UpdateEstimateStatus applies a lifecycle transition.
func (s *Service) UpdateEstimateStatus(ctx context.Context, actor shared.Actor, id int64, raw string) (Estimate, error) {
	to, err := ParseEstimateStatus(raw)
	if err != nil {
		return Estimate{}, err
	}
	var e Estimate
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockEstimate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if err := s.setEstimateStatus(ctx, tx, current, to); err != nil {
			return err
		}
		e = current
		return nil
	})
	if err != nil {
		return Estimate{}, err
	}
	s.transitioned(KindEstimate, string(to))
	s.record(ctx, actor, modules.KeyEstimates, id, "status_changed", map[string]any{"from": e.Status, "to": to})
	return s.repo.GetEstimate(ctx, actor.TenantID, id)
}

// SendEstimate moves a Draft estimate to Sent and emails it. Sending an
// already Sent estimate only repeats the email.
func (s *Service) SendEstimate(ctx context.Context, actor shared.Actor, id int64, to string) (Estimate, Warnings, error) {
	var from EstimateStatus
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockEstimate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		from = current.Status
		if from == EstimateSent {
			return nil
		}
		return s.setEstimateStatus(ctx, tx, current, EstimateSent)
	})
	if err != nil {
		return Estimate{}, nil, err
	}
	e, err := s.repo.GetEstimate(ctx, actor.TenantID, id)
	if err != nil {
		return Estimate{}, nil, err
	}
	if from != EstimateSent {
		s.transitioned(KindEstimate, string(EstimateSent))
		s.record(ctx, actor, modules.KeyEstimates, id, "status_changed", map[string]any{"from": from, "to": EstimateSent})
	}
	notice := notify.Notice{
		Kind:         notify.KindEstimateSent,
		TenantID:     e.TenantID,
		DocumentType: string(KindEstimate),
		DocumentID:   e.ID,
		Number:       e.Number,
		Amount:       e.Total,
		Currency:     e.Currency,
	}
	return e, s.notify(ctx, notice, e.ClientID, to), nil
}

// ConvertToInvoice creates an Unpaid invoice from an estimate and marks the
// estimate Accepted. Items in the request replace the estimate's items first.
func (s *Service) ConvertToInvoice(ctx context.Context, actor shared.Actor, estimateID int64, req ConvertRequest, idempotencyKey string) (Invoice, error) {
	invoiceDate, dueDate, err := invoiceDates(req.InvoiceDate, req.DueDate)
	if err != nil {
		return Invoice{}, err
	}
	supplied, err := toLineItems(req.Items)
	if err != nil {
		return Invoice{}, err
	}

	var inv Invoice
	var from EstimateStatus
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.claimKey(ctx, tx, actor.TenantID, idempotencyKey, KindInvoice); err != nil {
			return err
		}
		e, err := tx.LockEstimate(ctx, actor.TenantID, estimateID)
		if err != nil {
			return err
		}
		from = e.Status
		if e.Status != EstimateDraft && e.Status != EstimateSent {
			return fmt.Errorf("%w: estimate %s is %s and cannot be converted", shared.ErrValidation, e.Number, e.Status)
		}
		if e.ClientID == nil {
			return fmt.Errorf("%w: estimate %s has no client", shared.ErrValidation, e.Number)
		}
		if len(supplied) > 0 {
			e.Items = supplied
			e.Totals = docshared.ComputeTotals(supplied, e.Discount, e.DiscountType)
			if err := tx.UpdateEstimate(ctx, e); err != nil {
				return fmt.Errorf("update estimate: %w", err)
			}
			if err := tx.ReplaceItems(ctx, KindEstimate, e.ID, supplied); err != nil {
				return err
			}
		}
		if len(e.Items) == 0 {
			return fmt.Errorf("%w: estimate %s has no items to invoice", shared.ErrValidation, e.Number)
		}

		inv = Invoice{
			TenantID:    actor.TenantID,
			InvoiceDate: invoiceDate,
			DueDate:     dueDate,
			Currency:    currencyOrDefault(e.Currency),
			ClientID:    *e.ClientID,
			ProjectID:   e.ProjectID,
			EstimateID:  &e.ID,
			Note:        e.Note,
			Terms:       e.Terms,
			Financials:  invoiceFinancials(e.Financials),
			CreatedBy:   actor.UserID,
		}
		if err := s.insertInvoice(ctx, tx, &inv); err != nil {
			return err
		}
		if err := tx.SetEstimateStatus(ctx, e.TenantID, e.ID, EstimateAccepted, nil); err != nil {
			return fmt.Errorf("accept estimate: %w", err)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.applyDerived()
	s.transitioned(KindEstimate, string(EstimateAccepted))
	s.transitioned(KindInvoice, string(inv.Status))
	s.record(ctx, actor, modules.KeyEstimates, estimateID, "converted", map[string]any{"from": from, "invoice_id": inv.ID})
	s.record(ctx, actor, modules.KeyInvoices, inv.ID, "created", map[string]any{"invoice_number": inv.Number, "estimate_id": estimateID})
	return inv, nil
}

// invoiceFinancials copies estimate pricing with items detached from their rows
// and totals recomputed.
func invoiceFinancials(f Financials) Financials {
	items := make([]docshared.LineItem, len(f.Items))
	for i, it := range f.Items {
		it.ID = 0
		items[i] = it
	}
	items = docshared.NormalizeItems(items)
	return Financials{
		Items:        items,
		Discount:     f.Discount,
		DiscountType: f.DiscountType,
		Totals:       docshared.ComputeTotals(items, f.Discount, f.DiscountType),
	}
}
