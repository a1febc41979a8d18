package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	docshared "github.com/odyssey-erp/odyssey-crm/internal/documents/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

const dateLayout = "2006-01-02"

// LineItemInput is a line item as received from clients.
type LineItemInput struct {
	Name        string          `json:"item_name" validate:"max=255"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// ManualTotals bypasses item driven totals.
type ManualTotals struct {
	SubTotal decimal.Decimal `json:"sub_total"`
	Total    decimal.Decimal `json:"total"`
}

// PricingInput carries the item and discount fields common to all documents.
type PricingInput struct {
	Items        []LineItemInput `json:"items" validate:"dive"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountType string          `json:"discount_type"`
	Manual       *ManualTotals   `json:"manual_totals,omitempty"`
}

// ContractRequest creates or updates a contract.
type ContractRequest struct {
	Title        string `json:"title" validate:"required,max=255"`
	ContractDate string `json:"contract_date" validate:"required,datetime=2006-01-02"`
	ValidUntil   string `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
	ClientID     *int64 `json:"client_id" validate:"omitempty,gt=0"`
	ProjectID    *int64 `json:"project_id" validate:"omitempty,gt=0"`
	LeadID       *int64 `json:"lead_id" validate:"omitempty,gt=0"`
	Note         string `json:"note"`
	PricingInput
}

// InvoiceRequest creates or updates an invoice.
type InvoiceRequest struct {
	InvoiceDate      string `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate          string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Currency         string `json:"currency" validate:"omitempty,len=3"`
	ClientID         int64  `json:"client_id" validate:"required,gt=0"`
	ProjectID        *int64 `json:"project_id" validate:"omitempty,gt=0"`
	Note             string `json:"note"`
	Terms            string `json:"terms"`
	Draft            bool   `json:"draft"`
	IsRecurring      bool   `json:"is_recurring"`
	BillingFrequency string `json:"billing_frequency"`
	PricingInput
}

// EstimateRequest creates or updates an estimate.
type EstimateRequest struct {
	ValidTill string `json:"valid_till" validate:"omitempty,datetime=2006-01-02"`
	Currency  string `json:"currency" validate:"omitempty,len=3"`
	ClientID  *int64 `json:"client_id" validate:"omitempty,gt=0"`
	ProjectID *int64 `json:"project_id" validate:"omitempty,gt=0"`
	Note      string `json:"note"`
	Terms     string `json:"terms"`
	Status    string `json:"status"`
	PricingInput
}

// PricingPatch carries optional pricing changes. Nil fields keep the stored
// value; totals are always recomputed from the merged result.
type PricingPatch struct {
	Items        *[]LineItemInput `json:"items" validate:"omitempty,dive"`
	Discount     *decimal.Decimal `json:"discount"`
	DiscountType *string          `json:"discount_type"`
	Manual       *ManualTotals    `json:"manual_totals,omitempty"`
}

// ContractPatch updates the supplied contract fields only.
type ContractPatch struct {
	Title        *string `json:"title" validate:"omitempty,min=1,max=255"`
	ContractDate *string `json:"contract_date" validate:"omitempty,datetime=2006-01-02"`
	ValidUntil   *string `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
	ClientID     *int64  `json:"client_id" validate:"omitempty,gt=0"`
	ProjectID    *int64  `json:"project_id" validate:"omitempty,gt=0"`
	LeadID       *int64  `json:"lead_id" validate:"omitempty,gt=0"`
	Note         *string `json:"note"`
	PricingPatch
}

// InvoicePatch updates the supplied invoice fields only.
type InvoicePatch struct {
	InvoiceDate      *string `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate          *string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Currency         *string `json:"currency" validate:"omitempty,len=3"`
	ClientID         *int64  `json:"client_id" validate:"omitempty,gt=0"`
	ProjectID        *int64  `json:"project_id" validate:"omitempty,gt=0"`
	Note             *string `json:"note"`
	Terms            *string `json:"terms"`
	IsRecurring      *bool   `json:"is_recurring"`
	BillingFrequency *string `json:"billing_frequency"`
	PricingPatch
}

// EstimatePatch updates the supplied estimate fields only. A status is
// applied as a lifecycle transition.
type EstimatePatch struct {
	ValidTill *string `json:"valid_till" validate:"omitempty,datetime=2006-01-02"`
	Currency  *string `json:"currency" validate:"omitempty,len=3"`
	ClientID  *int64  `json:"client_id" validate:"omitempty,gt=0"`
	ProjectID *int64  `json:"project_id" validate:"omitempty,gt=0"`
	Note      *string `json:"note"`
	Terms     *string `json:"terms"`
	Status    string  `json:"status"`
	PricingPatch
}

// ConvertRequest turns an estimate into an invoice.
type ConvertRequest struct {
	InvoiceDate string          `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate     string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	Items       []LineItemInput `json:"items" validate:"dive"`
}

// RecurringRequest creates a run of recurring invoices.
type RecurringRequest struct {
	BillingFrequency    string          `json:"billing_frequency" validate:"required"`
	RecurringStartDate  string          `json:"recurring_start_date" validate:"required,datetime=2006-01-02"`
	RecurringTotalCount int             `json:"recurring_total_count" validate:"required,gt=0,lte=120"`
	ClientID            int64           `json:"client_id" validate:"required,gt=0"`
	Currency            string          `json:"currency" validate:"omitempty,len=3"`
	Items               []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// StatusRequest moves a document to a new status.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SendRequest overrides the recipient of a document email.
type SendRequest struct {
	To string `json:"to" validate:"omitempty,email"`
}

// toLineItems validates and normalises raw items.
func toLineItems(in []LineItemInput) ([]docshared.LineItem, error) {
	items := make([]docshared.LineItem, 0, len(in))
	for i, it := range in {
		switch {
		case it.Quantity.IsNegative():
			return nil, fmt.Errorf("%w: items[%d].quantity must not be negative", shared.ErrValidation, i)
		case it.UnitPrice.IsNegative():
			return nil, fmt.Errorf("%w: items[%d].unit_price must not be negative", shared.ErrValidation, i)
		case it.TaxRate.IsNegative():
			return nil, fmt.Errorf("%w: items[%d].tax_rate must not be negative", shared.ErrValidation, i)
		}
		name := strings.TrimSpace(it.Name)
		if name == "" {
			name = strings.TrimSpace(it.Description)
		}
		if name == "" {
			name = "Item"
		}
		items = append(items, docshared.LineItem{
			Name:        name,
			Description: it.Description,
			Quantity:    it.Quantity,
			Unit:        docshared.Unit(it.Unit),
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
			Amount:      it.Amount,
		})
	}
	return docshared.NormalizeItems(items), nil
}

// price resolves items and totals for a document.
func (p PricingInput) price() (Financials, error) {
	items, err := toLineItems(p.Items)
	if err != nil {
		return Financials{}, err
	}
	dtype := docshared.NormalizeDiscountType(p.DiscountType)
	f := Financials{Items: items, Discount: p.Discount, DiscountType: dtype}
	if p.Manual != nil {
		f.Totals = docshared.ComputeManualTotals(p.Manual.SubTotal, p.Manual.Total)
	} else {
		f.Totals = docshared.ComputeTotals(items, p.Discount, dtype)
	}
	return f, nil
}

// apply merges the patch onto stored pricing. replaced reports whether the
// item rows must be rewritten.
func (p PricingPatch) apply(current Financials) (f Financials, replaced bool, err error) {
	f = Financials{Items: current.Items, Discount: current.Discount, DiscountType: current.DiscountType}
	if p.Items != nil {
		if f.Items, err = toLineItems(*p.Items); err != nil {
			return Financials{}, false, err
		}
		replaced = true
	}
	if p.Discount != nil {
		f.Discount = *p.Discount
	}
	if p.DiscountType != nil {
		f.DiscountType = docshared.NormalizeDiscountType(*p.DiscountType)
	}
	if f.DiscountType == "" {
		f.DiscountType = docshared.DiscountPercent
	}
	if p.Manual != nil {
		f.Totals = docshared.ComputeManualTotals(p.Manual.SubTotal, p.Manual.Total)
	} else {
		f.Totals = docshared.ComputeTotals(f.Items, f.Discount, f.DiscountType)
	}
	return f, replaced, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setID(dst **int64, v *int64) {
	if v != nil {
		id := *v
		*dst = &id
	}
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", shared.ErrValidation, field)
	}
	return t, nil
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func currencyOrDefault(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "USD"
	}
	return raw
}
