package documents

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-crm/internal/modules"
	"github.com/odyssey-erp/odyssey-crm/internal/notify"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

func (req ContractRequest) build() (Contract, error) {
	contractDate, err := parseDate("contract_date", req.ContractDate)
	if err != nil {
		return Contract{}, err
	}
	validUntil, err := parseOptionalDate("valid_until", req.ValidUntil)
	if err != nil {
		return Contract{}, err
	}
	if validUntil != nil && validUntil.Before(contractDate) {
		return Contract{}, fmt.Errorf("%w: valid_until must not be before contract_date", shared.ErrValidation)
	}
	fin, err := req.price()
	if err != nil {
		return Contract{}, err
	}
	return Contract{
		Title:        req.Title,
		ContractDate: contractDate,
		ValidUntil:   validUntil,
		ClientID:     req.ClientID,
		ProjectID:    req.ProjectID,
		LeadID:       req.LeadID,
		Note:         req.Note,
		Amount:       fin.Total,
		Financials:   fin,
	}, nil
}

// CreateContract stores a Draft contract under the next contract number.
func (s *Service) CreateContract(ctx context.Context, actor shared.Actor, req ContractRequest, idempotencyKey string) (Contract, error) {
	c, err := req.build()
	if err != nil {
		return Contract{}, err
	}
	c.TenantID = actor.TenantID
	c.Status = ContractDraft
	c.CreatedBy = actor.UserID

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.claimKey(ctx, tx, actor.TenantID, idempotencyKey, KindContract); err != nil {
			return err
		}
		_, err := s.allocate(ctx, tx, KindContract, actor.TenantID, func(ctx context.Context, number string) error {
			c.Number = number
			return tx.InsertContract(ctx, &c)
		})
		return err
	})
	if err != nil {
		return Contract{}, err
	}
	s.record(ctx, actor, modules.KeyContracts, c.ID, "created", map[string]any{"contract_number": c.Number, "total": c.Total.String()})
	return c, nil
}

// UpdateContract applies the supplied fields to a contract and recomputes its
// totals. Items are rewritten only when the patch carries them.
func (s *Service) UpdateContract(ctx context.Context, actor shared.Actor, id int64, patch ContractPatch) (Contract, error) {
	var next Contract
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockContract(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		var replaced bool
		if next, replaced, err = patch.merge(current); err != nil {
			return err
		}
		if err := tx.UpdateContract(ctx, next); err != nil {
			return fmt.Errorf("update contract: %w", err)
		}
		if !replaced {
			return nil
		}
		return tx.ReplaceItems(ctx, KindContract, id, next.Items)
	})
	if err != nil {
		return Contract{}, err
	}
	s.record(ctx, actor, modules.KeyContracts, id, "updated", map[string]any{"total": next.Total.String()})
	return s.repo.GetContract(ctx, actor.TenantID, id)
}

func (p ContractPatch) merge(c Contract) (Contract, bool, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return Contract{}, false, fmt.Errorf("%w: title must not be empty", shared.ErrValidation)
		}
		c.Title = title
	}
	if p.ContractDate != nil {
		d, err := parseDate("contract_date", *p.ContractDate)
		if err != nil {
			return Contract{}, false, err
		}
		c.ContractDate = d
	}
	if p.ValidUntil != nil {
		d, err := parseOptionalDate("valid_until", *p.ValidUntil)
		if err != nil {
			return Contract{}, false, err
		}
		c.ValidUntil = d
	}
	if c.ValidUntil != nil && c.ValidUntil.Before(c.ContractDate) {
		return Contract{}, false, fmt.Errorf("%w: valid_until must not be before contract_date", shared.ErrValidation)
	}
	setID(&c.ClientID, p.ClientID)
	setID(&c.ProjectID, p.ProjectID)
	setID(&c.LeadID, p.LeadID)
	setString(&c.Note, p.Note)
	fin, replaced, err := p.apply(c.Financials)
	if err != nil {
		return Contract{}, false, err
	}
	c.Financials = fin
	c.Amount = fin.Total
	return c, replaced, nil
}

// GetContract returns a contract with its items.
func (s *Service) GetContract(ctx context.Context, tenantID, id int64) (Contract, error) {
	return s.repo.GetContract(ctx, tenantID, id)
}

// ListContracts returns a page of contracts.
func (s *Service) ListContracts(ctx context.Context, tenantID int64, filter ListFilter) ([]Contract, shared.Pagination, error) {
	filter = normalizeFilter(filter)
	if filter.Status != "" {
		status, err := ParseContractStatus(filter.Status)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		filter.Status = string(status)
	}
	items, total, err := s.repo.ListContracts(ctx, tenantID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, page(filter, total), nil
}

// DeleteContract soft-deletes a contract.
func (s *Service) DeleteContract(ctx context.Context, actor shared.Actor, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDelete(ctx, KindContract, actor.TenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, modules.KeyContracts, id, "deleted", nil)
	return nil
}

// UpdateContractStatus applies a lifecycle transition. Accepted and Rejected
// notify the client once the change is committed.
func (s *Service) UpdateContractStatus(ctx context.Context, actor shared.Actor, id int64, raw string) (Contract, Warnings, error) {
	to, err := ParseContractStatus(raw)
	if err != nil {
		return Contract{}, nil, err
	}
	c, err := s.moveContract(ctx, actor, id, to)
	if err != nil {
		return Contract{}, nil, err
	}
	var warnings Warnings
	switch to {
	case ContractAccepted:
		warnings = s.notify(ctx, contractNotice(notify.KindContractAccepted, c), c.ClientID, "")
	case ContractRejected:
		warnings = s.notify(ctx, contractNotice(notify.KindContractRejected, c), c.ClientID, "")
	}
	return c, warnings, nil
}

// SendContract moves a Draft contract to Sent and emails it. Sending an
// already Sent contract only repeats the email.
func (s *Service) SendContract(ctx context.Context, actor shared.Actor, id int64, to string) (Contract, Warnings, error) {
	c, err := s.moveContract(ctx, actor, id, ContractSent)
	if err != nil {
		return Contract{}, nil, err
	}
	return c, s.notify(ctx, contractNotice(notify.KindContractSent, c), c.ClientID, to), nil
}

func (s *Service) moveContract(ctx context.Context, actor shared.Actor, id int64, to ContractStatus) (Contract, error) {
	var c Contract
	var from ContractStatus
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		c, err = tx.LockContract(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		from = c.Status
		if from == to && to == ContractSent {
			return nil
		}
		if err := contractLifecycle.check(from, to); err != nil {
			return err
		}
		if err := tx.SetContractStatus(ctx, actor.TenantID, id, to); err != nil {
			return fmt.Errorf("update contract status: %w", err)
		}
		c.Status = to
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	if from != to {
		s.transitioned(KindContract, string(to))
		s.record(ctx, actor, modules.KeyContracts, id, "status_changed", map[string]any{"from": from, "to": to})
	}
	return c, nil
}

func contractNotice(kind notify.Kind, c Contract) notify.Notice {
	return notify.Notice{
		Kind:         kind,
		TenantID:     c.TenantID,
		DocumentType: string(KindContract),
		DocumentID:   c.ID,
		Number:       c.Number,
		Title:        c.Title,
		Amount:       c.Amount,
	}
}
