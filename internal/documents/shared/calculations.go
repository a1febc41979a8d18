package shared

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineItem is one billable row of a contract, invoice or estimate.
type LineItem struct {
	ID          int64           `json:"id,omitempty"`
	Name        string          `json:"item_name"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        Unit            `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Amount      decimal.Decimal `json:"amount"`
	Position    int             `json:"position,omitempty"`
}

// Totals holds the derived financial fields of a document.
type Totals struct {
	SubTotal       decimal.Decimal `json:"sub_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
}

// ResolveAmount returns the client amount when set, otherwise quantity*unit_price*(1+tax_rate/100).
// A zero quantity counts as one unit.
func ResolveAmount(item LineItem) decimal.Decimal {
	if !item.Amount.IsZero() {
		return item.Amount
	}
	qty := item.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	gross := qty.Mul(item.UnitPrice)
	return gross.Mul(decimal.NewFromInt(1).Add(item.TaxRate.Div(hundred)))
}

// NormalizeItems resolves each item's amount and unit so stored rows match the computed totals.
func NormalizeItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		item.Unit = NormalizeUnit(string(item.Unit))
		item.Amount = ResolveAmount(item)
		if item.Quantity.IsZero() {
			item.Quantity = decimal.NewFromInt(1)
		}
		if item.Position == 0 {
			item.Position = i + 1
		}
		out[i] = item
	}
	return out
}

// ComputeTotals derives sub total, discount and total from the line items.
// Tax is folded into each item's amount, so the document level tax is always zero.
// Totals are not floored: a fixed discount larger than the sub total yields a negative total.
// An empty item list yields zero totals whatever the discount.
func ComputeTotals(items []LineItem, discount decimal.Decimal, discountType DiscountType) Totals {
	if len(items) == 0 {
		return Totals{SubTotal: decimal.Zero, DiscountAmount: decimal.Zero, TaxAmount: decimal.Zero, Total: decimal.Zero}
	}
	subTotal := decimal.Zero
	for _, item := range items {
		subTotal = subTotal.Add(ResolveAmount(item))
	}
	subTotal = subTotal.Round(2)
	var discountAmount decimal.Decimal
	if discountType == DiscountFixed {
		discountAmount = discount
	} else {
		discountAmount = subTotal.Mul(discount).Div(hundred)
	}
	discountAmount = discountAmount.Round(2)
	taxAmount := decimal.Zero
	// total is derived from the rounded parts so the stored columns always add up.
	return Totals{
		SubTotal:       subTotal,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		Total:          subTotal.Sub(discountAmount).Add(taxAmount),
	}
}

// ComputeManualTotals accepts caller supplied sub total and total without looking at items.
func ComputeManualTotals(subTotal, total decimal.Decimal) Totals {
	return Totals{
		SubTotal:       subTotal.Round(2),
		DiscountAmount: subTotal.Sub(total).Round(2),
		TaxAmount:      decimal.Zero,
		Total:          total.Round(2),
	}
}
