package documents

import (
	"time"

	"github.com/shopspring/decimal"

	docshared "github.com/odyssey-erp/odyssey-crm/internal/documents/shared"
)

// Kind names a document type in logs, metrics and activity records.
type Kind string

const (
	KindContract Kind = "contract"
	KindInvoice  Kind = "invoice"
	KindEstimate Kind = "estimate"
)

// ContractStatus enumerates contract lifecycle states.
type ContractStatus string

const (
	ContractDraft    ContractStatus = "Draft"
	ContractSent     ContractStatus = "Sent"
	ContractAccepted ContractStatus = "Accepted"
	ContractRejected ContractStatus = "Rejected"
	ContractExpired  ContractStatus = "Expired"
)

// EstimateStatus enumerates estimate lifecycle states.
type EstimateStatus string

const (
	EstimateDraft    EstimateStatus = "Draft"
	EstimateSent     EstimateStatus = "Sent"
	EstimateAccepted EstimateStatus = "Accepted"
	EstimateDeclined EstimateStatus = "Declined"
	EstimateExpired  EstimateStatus = "Expired"
)

// InvoiceStatus is derived from payments and credit notes on every read.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "Draft"
	InvoiceUnpaid        InvoiceStatus = "Unpaid"
	InvoicePartiallyPaid InvoiceStatus = "Partially Paid"
	InvoiceFullyPaid     InvoiceStatus = "Fully Paid"
	InvoiceCredited      InvoiceStatus = "Credited"
)

// Financials are the item driven fields shared by every document type.
type Financials struct {
	Items        []docshared.LineItem   `json:"items"`
	Discount     decimal.Decimal        `json:"discount"`
	DiscountType docshared.DiscountType `json:"discount_type"`
	docshared.Totals
}

// Contract is an agreement sent to a client for acceptance.
type Contract struct {
	ID           int64           `json:"id"`
	TenantID     int64           `json:"company_id"`
	Number       string          `json:"contract_number"`
	Title        string          `json:"title"`
	ContractDate time.Time       `json:"contract_date"`
	ValidUntil   *time.Time      `json:"valid_until,omitempty"`
	ClientID     *int64          `json:"client_id,omitempty"`
	ProjectID    *int64          `json:"project_id,omitempty"`
	LeadID       *int64          `json:"lead_id,omitempty"`
	Note         string          `json:"note,omitempty"`
	Status       ContractStatus  `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Financials
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invoice is a bill issued to a client. Status, PaidAmount, CreditedAmount and
// DueAmount are computed when the invoice is loaded.
type Invoice struct {
	ID                  int64                       `json:"id"`
	TenantID            int64                       `json:"company_id"`
	Number              string                      `json:"invoice_number"`
	InvoiceDate         time.Time                   `json:"invoice_date"`
	DueDate             time.Time                   `json:"due_date"`
	Currency            string                      `json:"currency"`
	ClientID            int64                       `json:"client_id"`
	ProjectID           *int64                      `json:"project_id,omitempty"`
	EstimateID          *int64                      `json:"estimate_id,omitempty"`
	Note                string                      `json:"note,omitempty"`
	Terms               string                      `json:"terms,omitempty"`
	Draft               bool                        `json:"-"`
	Status              InvoiceStatus               `json:"status"`
	IsRecurring         bool                        `json:"is_recurring"`
	BillingFrequency    *docshared.BillingFrequency `json:"billing_frequency,omitempty"`
	RecurringStartDate  *time.Time                  `json:"recurring_start_date,omitempty"`
	RecurringTotalCount *int                        `json:"recurring_total_count,omitempty"`
	Financials
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	CreditedAmount decimal.Decimal `json:"credited_amount"`
	DueAmount      decimal.Decimal `json:"due_amount"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Estimate is a priced proposal that may be converted into an invoice.
type Estimate struct {
	ID        int64          `json:"id"`
	TenantID  int64          `json:"company_id"`
	Number    string         `json:"estimate_number"`
	ValidTill *time.Time     `json:"valid_till,omitempty"`
	Currency  string         `json:"currency"`
	ClientID  *int64         `json:"client_id,omitempty"`
	ProjectID *int64         `json:"project_id,omitempty"`
	Note      string         `json:"note,omitempty"`
	Terms     string         `json:"terms,omitempty"`
	Status    EstimateStatus `json:"status"`
	Financials
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedBy int64      `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ListFilter narrows document listings.
type ListFilter struct {
	Status    string
	ClientID  *int64
	ProjectID *int64
	Search    string
	Page      int
	PerPage   int
}
