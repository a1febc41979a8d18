package documents

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-crm/internal/documents/numbering"
	docshared "github.com/odyssey-erp/odyssey-crm/internal/documents/shared"
)

// Repository reads documents and opens transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetContract(ctx context.Context, tenantID, id int64) (Contract, error)
	ListContracts(ctx context.Context, tenantID int64, filter ListFilter) ([]Contract, int, error)
	GetInvoice(ctx context.Context, tenantID, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, tenantID int64, filter ListFilter) ([]Invoice, int, error)
	GetEstimate(ctx context.Context, tenantID, id int64) (Estimate, error)
	ListEstimates(ctx context.Context, tenantID int64, filter ListFilter) ([]Estimate, int, error)
	ClientEmail(ctx context.Context, tenantID, clientID int64) (string, error)
}

// TxRepository holds write operations executed inside a transaction. Insert
// methods must report a duplicate document number as shared.ErrConflict and
// leave the transaction usable so another number can be tried.
type TxRepository interface {
	Numbers(kind Kind) numbering.Store
	ClaimIdempotencyKey(ctx context.Context, tenantID int64, key string, kind Kind) error

	LockContract(ctx context.Context, tenantID, id int64) (Contract, error)
	InsertContract(ctx context.Context, c *Contract) error
	UpdateContract(ctx context.Context, c Contract) error
	SetContractStatus(ctx context.Context, tenantID, id int64, status ContractStatus) error

	LockInvoice(ctx context.Context, tenantID, id int64) (Invoice, error)
	InsertInvoice(ctx context.Context, inv *Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	MarkInvoiceSent(ctx context.Context, tenantID, id int64, at time.Time) error

	LockEstimate(ctx context.Context, tenantID, id int64) (Estimate, error)
	InsertEstimate(ctx context.Context, e *Estimate) error
	UpdateEstimate(ctx context.Context, e Estimate) error
	SetEstimateStatus(ctx context.Context, tenantID, id int64, status EstimateStatus, sentAt *time.Time) error

	ReplaceItems(ctx context.Context, kind Kind, documentID int64, items []docshared.LineItem) error
	SoftDelete(ctx context.Context, kind Kind, tenantID, id int64) error
}
