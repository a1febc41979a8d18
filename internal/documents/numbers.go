package documents

import "github.com/odyssey-erp/odyssey-crm/internal/documents/numbering"

// numberingRule describes how a document type is numbered. Estimate numbers
// are unique across tenants; the others are unique per tenant.
type numberingRule struct {
	format numbering.Format
	global bool
	table  string
	column string
}

var numberingRules = map[Kind]numberingRule{
	KindContract: {
		format: numbering.Format{Prefix: "CONTRACT", Separator: "#", MinDigits: 3},
		table:  "contracts",
		column: "contract_number",
	},
	KindInvoice: {
		format: numbering.Format{Prefix: "INV", Separator: "#", MinDigits: 3},
		table:  "invoices",
		column: "invoice_number",
	},
	KindEstimate: {
		format: numbering.Format{Prefix: "EST", Separator: "#", MinDigits: 3},
		global: true,
		table:  "estimates",
		column: "estimate_number",
	},
}

type itemTable struct {
	table string
	fk    string
}

var itemTables = map[Kind]itemTable{
	KindContract: {table: "contract_items", fk: "contract_id"},
	KindInvoice:  {table: "invoice_items", fk: "invoice_id"},
	KindEstimate: {table: "estimate_items", fk: "estimate_id"},
}
