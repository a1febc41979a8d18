package documents

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// lifecycle is a per-type state machine: states in display order and the
// targets reachable from each state.
type lifecycle[S ~string] struct {
	kind   Kind
	states []S
	next   map[S][]S
}

var contractLifecycle = lifecycle[ContractStatus]{
	kind:   KindContract,
	states: []ContractStatus{ContractDraft, ContractSent, ContractAccepted, ContractRejected, ContractExpired},
	next: map[ContractStatus][]ContractStatus{
		ContractDraft: {ContractSent, ContractExpired},
		ContractSent:  {ContractAccepted, ContractRejected, ContractExpired},
	},
}

var estimateLifecycle = lifecycle[EstimateStatus]{
	kind:   KindEstimate,
	states: []EstimateStatus{EstimateDraft, EstimateSent, EstimateAccepted, EstimateDeclined, EstimateExpired},
	next: map[EstimateStatus][]EstimateStatus{
		EstimateDraft: {EstimateSent, EstimateExpired},
		EstimateSent:  {EstimateAccepted, EstimateDeclined, EstimateExpired},
	},
}

// parse matches raw case-insensitively against the known states.
func (l lifecycle[S]) parse(raw string) (S, error) {
	raw = strings.TrimSpace(raw)
	for _, s := range l.states {
		if strings.EqualFold(string(s), raw) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: invalid %s status %q, must be one of: %s", shared.ErrValidation, l.kind, raw, join(l.states))
}

// check validates from -> to. Staying in the same state is not a transition.
func (l lifecycle[S]) check(from, to S) error {
	for _, s := range l.next[from] {
		if s == to {
			return nil
		}
	}
	allowed := "none"
	if targets := l.next[from]; len(targets) > 0 {
		allowed = join(targets)
	}
	return fmt.Errorf("%w: %s cannot move from %s to %s, permitted: %s", shared.ErrValidation, l.kind, from, to, allowed)
}

func join[S ~string](states []S) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// ParseContractStatus validates a requested contract status.
func ParseContractStatus(raw string) (ContractStatus, error) {
	return contractLifecycle.parse(raw)
}

// ParseEstimateStatus validates a requested estimate status.
func ParseEstimateStatus(raw string) (EstimateStatus, error) {
	return estimateLifecycle.parse(raw)
}

// DeriveInvoiceStatus computes the status shown for an invoice. A draft stays
// Draft; any positive credit forces Credited; otherwise payments decide.
func DeriveInvoiceStatus(draft bool, total, paid, credited decimal.Decimal) InvoiceStatus {
	switch {
	case draft:
		return InvoiceDraft
	case credited.IsPositive():
		return InvoiceCredited
	case !paid.IsPositive():
		return InvoiceUnpaid
	case paid.GreaterThanOrEqual(total):
		return InvoiceFullyPaid
	default:
		return InvoicePartiallyPaid
	}
}

// applyDerived fills the computed payment fields of inv.
func (inv *Invoice) applyDerived() {
	inv.Status = DeriveInvoiceStatus(inv.Draft, inv.Total, inv.PaidAmount, inv.CreditedAmount)
	inv.DueAmount = inv.Total.Sub(inv.PaidAmount)
}
