package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-crm/internal/documents/numbering"
	docshared "github.com/odyssey-erp/odyssey-crm/internal/documents/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

type pgRepository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{db: pool, pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{pgRepository: pgRepository{db: tx, pool: r.pool}, tx: tx})
	})
}

type pgTxRepository struct {
	pgRepository
	tx pgx.Tx
}

// savepoint runs fn in a nested transaction so a failed statement does not
// abort the enclosing one.
func (r *pgTxRepository) savepoint(ctx context.Context, fn func(pgx.Tx) error) error {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func notFound(kind Kind, id int64) error {
	return fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
}

func duplicateNumber(kind Kind, number string) error {
	return fmt.Errorf("%w: %s number %s already exists", shared.ErrConflict, kind, number)
}

// ---------------------------------------------------------------------------
// numbering
// ---------------------------------------------------------------------------

type pgNumberStore struct {
	db   db.DBTX
	rule numberingRule
}

func (r *pgTxRepository) Numbers(kind Kind) numbering.Store {
	return &pgNumberStore{db: r.tx, rule: numberingRules[kind]}
}

func (s *pgNumberStore) MaxSequence(ctx context.Context, scope numbering.Scope) (int64, error) {
	pattern := s.rule.format.Pattern()
	var max int64
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(CAST(substring(%[2]s FROM $1) AS BIGINT)), 0)
		FROM %[1]s WHERE %[2]s ~ $1 AND ($2 OR company_id = $3)`, s.rule.table, s.rule.column),
		pattern, scope.Global, scope.TenantID).Scan(&max)
	return max, err
}

func (s *pgNumberStore) Exists(ctx context.Context, scope numbering.Scope, number string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM %[1]s WHERE %[2]s = $1 AND ($2 OR company_id = $3))`, s.rule.table, s.rule.column),
		number, scope.Global, scope.TenantID).Scan(&exists)
	return exists, err
}

func (r *pgTxRepository) ClaimIdempotencyKey(ctx context.Context, tenantID int64, key string, kind Kind) error {
	return shared.NewIdempotencyStore(r.tx).CheckAndInsert(ctx, tenantID, key, string(kind))
}

// ---------------------------------------------------------------------------
// items
// ---------------------------------------------------------------------------

func (r *pgRepository) loadItems(ctx context.Context, kind Kind, ids []int64) (map[int64][]docshared.LineItem, error) {
	out := make(map[int64][]docshared.LineItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	t := itemTables[kind]
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT id, %[2]s, item_name, COALESCE(description, ''), quantity, unit,
			unit_price, tax_rate, amount, position
		FROM %[1]s WHERE %[2]s = ANY($1) ORDER BY %[2]s, position, id`, t.table, t.fk), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item  docshared.LineItem
			docID int64
			unit  string
		)
		if err := rows.Scan(&item.ID, &docID, &item.Name, &item.Description, &item.Quantity, &unit,
			&item.UnitPrice, &item.TaxRate, &item.Amount, &item.Position); err != nil {
			return nil, err
		}
		item.Unit = docshared.Unit(unit)
		out[docID] = append(out[docID], item)
	}
	return out, rows.Err()
}

func (r *pgTxRepository) insertItems(ctx context.Context, kind Kind, documentID int64, items []docshared.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	t := itemTables[kind]
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{documentID, it.Name, it.Description, it.Quantity, string(it.Unit),
			it.UnitPrice, it.TaxRate, it.Amount, it.Position})
	}
	_, err := r.tx.CopyFrom(ctx, pgx.Identifier{t.table},
		[]string{t.fk, "item_name", "description", "quantity", "unit", "unit_price", "tax_rate", "amount", "position"},
		pgx.CopyFromRows(rows))
	return err
}

func (r *pgTxRepository) ReplaceItems(ctx context.Context, kind Kind, documentID int64, items []docshared.LineItem) error {
	t := itemTables[kind]
	if _, err := r.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.table, t.fk), documentID); err != nil {
		return err
	}
	return r.insertItems(ctx, kind, documentID, items)
}

func (r *pgTxRepository) SoftDelete(ctx context.Context, kind Kind, tenantID, id int64) error {
	tag, err := r.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`, numberingRules[kind].table), id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(kind, id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// filters
// ---------------------------------------------------------------------------

type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) sql() string {
	return "WHERE " + strings.Join(w.clauses, " AND ")
}

func baseFilter(tenantID int64, filter ListFilter, numberColumn string) *whereBuilder {
	w := &whereBuilder{}
	w.add("d.company_id = ?", tenantID)
	w.clauses = append(w.clauses, "d.is_deleted = FALSE")
	if filter.ClientID != nil {
		w.add("d.client_id = ?", *filter.ClientID)
	}
	if filter.ProjectID != nil {
		w.add("d.project_id = ?", *filter.ProjectID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		w.add("d."+numberColumn+" ILIKE ?", "%"+s+"%")
	}
	return w
}

func (w *whereBuilder) page(filter ListFilter) string {
	page, perPage := filter.Page, filter.PerPage
	w.args = append(w.args, perPage, shared.Offset(page, perPage))
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

// ---------------------------------------------------------------------------
// contracts
// ---------------------------------------------------------------------------

const contractColumns = `d.id, d.company_id, d.contract_number, d.title, d.contract_date, d.valid_until,
	d.client_id, d.project_id, d.lead_id, COALESCE(d.note, ''), d.status, d.discount, d.discount_type,
	d.sub_total, d.discount_amount, d.tax_amount, d.total, d.amount, d.created_by, d.created_at, d.updated_at`

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	var dtype string
	err := row.Scan(&c.ID, &c.TenantID, &c.Number, &c.Title, &c.ContractDate, &c.ValidUntil,
		&c.ClientID, &c.ProjectID, &c.LeadID, &c.Note, &c.Status, &c.Discount, &dtype,
		&c.SubTotal, &c.DiscountAmount, &c.TaxAmount, &c.Total, &c.Amount, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	c.DiscountType = docshared.DiscountType(dtype)
	return c, err
}

func (r *pgRepository) getContract(ctx context.Context, tenantID, id int64, lock bool) (Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts d WHERE d.id = $1 AND d.company_id = $2 AND d.is_deleted = FALSE`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanContract(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if shared.IsNoRows(err) {
			return Contract{}, notFound(KindContract, id)
		}
		return Contract{}, err
	}
	items, err := r.loadItems(ctx, KindContract, []int64{c.ID})
	if err != nil {
		return Contract{}, err
	}
	c.Items = nonNil(items[c.ID])
	return c, nil
}

func (r *pgRepository) GetContract(ctx context.Context, tenantID, id int64) (Contract, error) {
	return r.getContract(ctx, tenantID, id, false)
}

func (r *pgTxRepository) LockContract(ctx context.Context, tenantID, id int64) (Contract, error) {
	return r.getContract(ctx, tenantID, id, true)
}

func (r *pgRepository) ListContracts(ctx context.Context, tenantID int64, filter ListFilter) ([]Contract, int, error) {
	w := baseFilter(tenantID, filter, "contract_number")
	if filter.Status != "" {
		w.add("UPPER(d.status) = UPPER(?)", filter.Status)
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contracts d `+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+contractColumns+` FROM contracts d `+w.sql()+
		` ORDER BY d.created_at DESC, d.id DESC`+w.page(filter), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Contract{}
	var ids []int64
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	items, err := r.loadItems(ctx, KindContract, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = nonNil(items[out[i].ID])
	}
	return out, total, nil
}

func (r *pgTxRepository) InsertContract(ctx context.Context, c *Contract) error {
	err := r.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO contracts (company_id, contract_number, title, contract_date, valid_until,
				client_id, project_id, lead_id, note, status, discount, discount_type,
				sub_total, discount_amount, tax_amount, total, amount, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING id, created_at, updated_at`,
			c.TenantID, c.Number, c.Title, c.ContractDate, c.ValidUntil, c.ClientID, c.ProjectID, c.LeadID,
			c.Note, string(c.Status), c.Discount, string(c.DiscountType),
			c.SubTotal, c.DiscountAmount, c.TaxAmount, c.Total, c.Amount, c.CreatedBy).
			Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	})
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return duplicateNumber(KindContract, c.Number)
		}
		return err
	}
	return r.insertItems(ctx, KindContract, c.ID, c.Items)
}

func (r *pgTxRepository) UpdateContract(ctx context.Context, c Contract) error {
	_, err := r.tx.Exec(ctx, `UPDATE contracts SET title = $3, contract_date = $4, valid_until = $5,
			client_id = $6, project_id = $7, lead_id = $8, note = $9, discount = $10, discount_type = $11,
			sub_total = $12, discount_amount = $13, tax_amount = $14, total = $15, amount = $16, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`,
		c.ID, c.TenantID, c.Title, c.ContractDate, c.ValidUntil, c.ClientID, c.ProjectID, c.LeadID, c.Note,
		c.Discount, string(c.DiscountType), c.SubTotal, c.DiscountAmount, c.TaxAmount, c.Total, c.Amount)
	return err
}

func (r *pgTxRepository) SetContractStatus(ctx context.Context, tenantID, id int64, status ContractStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE contracts SET status = $3, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`, id, tenantID, string(status))
	return err
}

// ---------------------------------------------------------------------------
// invoices
// ---------------------------------------------------------------------------

const invoiceColumns = `d.id, d.company_id, d.invoice_number, d.invoice_date, d.due_date, d.currency,
	d.client_id, d.project_id, d.estimate_id, COALESCE(d.note, ''), COALESCE(d.terms, ''), d.status,
	d.is_recurring, d.billing_frequency, d.recurring_start_date, d.recurring_total_count,
	d.discount, d.discount_type, d.sub_total, d.discount_amount, d.tax_amount, d.total,
	COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = d.id AND p.is_deleted = FALSE), 0),
	COALESCE((SELECT SUM(cn.amount) FROM credit_notes cn WHERE cn.invoice_id = d.id AND cn.is_deleted = FALSE), 0),
	d.sent_at, d.created_by, d.created_at, d.updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv       Invoice
		status    string
		frequency *string
		dtype     string
	)
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Number, &inv.InvoiceDate, &inv.DueDate, &inv.Currency,
		&inv.ClientID, &inv.ProjectID, &inv.EstimateID, &inv.Note, &inv.Terms, &status,
		&inv.IsRecurring, &frequency, &inv.RecurringStartDate, &inv.RecurringTotalCount,
		&inv.Discount, &dtype, &inv.SubTotal, &inv.DiscountAmount, &inv.TaxAmount, &inv.Total,
		&inv.PaidAmount, &inv.CreditedAmount, &inv.SentAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	inv.Draft = InvoiceStatus(status) == InvoiceDraft
	inv.DiscountType = docshared.DiscountType(dtype)
	if frequency != nil {
		inv.BillingFrequency = docshared.NormalizeBillingFrequency(*frequency)
	}
	inv.applyDerived()
	return inv, nil
}

func (r *pgRepository) getInvoice(ctx context.Context, tenantID, id int64, lock bool) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices d WHERE d.id = $1 AND d.company_id = $2 AND d.is_deleted = FALSE`
	if lock {
		query += ` FOR UPDATE OF d`
	}
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if shared.IsNoRows(err) {
			return Invoice{}, notFound(KindInvoice, id)
		}
		return Invoice{}, err
	}
	items, err := r.loadItems(ctx, KindInvoice, []int64{inv.ID})
	if err != nil {
		return Invoice{}, err
	}
	inv.Items = nonNil(items[inv.ID])
	return inv, nil
}

func (r *pgRepository) GetInvoice(ctx context.Context, tenantID, id int64) (Invoice, error) {
	return r.getInvoice(ctx, tenantID, id, false)
}

func (r *pgTxRepository) LockInvoice(ctx context.Context, tenantID, id int64) (Invoice, error) {
	return r.getInvoice(ctx, tenantID, id, true)
}

// ListInvoices filters by derived status in memory because the status is not stored.
func (r *pgRepository) ListInvoices(ctx context.Context, tenantID int64, filter ListFilter) ([]Invoice, int, error) {
	w := baseFilter(tenantID, filter, "invoice_number")
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices d `+w.sql()+
		` ORDER BY d.created_at DESC, d.id DESC`, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var matched []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		if filter.Status != "" && !strings.EqualFold(string(inv.Status), filter.Status) {
			continue
		}
		matched = append(matched, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	total := len(matched)
	start := shared.Offset(filter.Page, filter.PerPage)
	pg := shared.NewPagination(filter.Page, filter.PerPage, total)
	if start > total {
		start = total
	}
	end := start + pg.PerPage
	if end > total {
		end = total
	}
	out := append([]Invoice{}, matched[start:end]...)
	ids := make([]int64, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	items, err := r.loadItems(ctx, KindInvoice, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = nonNil(items[out[i].ID])
	}
	return out, total, nil
}

func storedInvoiceStatus(inv Invoice) string {
	if inv.Draft {
		return string(InvoiceDraft)
	}
	return string(InvoiceUnpaid)
}

func frequencyValue(f *docshared.BillingFrequency) *string {
	if f == nil {
		return nil
	}
	s := string(*f)
	return &s
}

func (r *pgTxRepository) InsertInvoice(ctx context.Context, inv *Invoice) error {
	err := r.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO invoices (company_id, invoice_number, invoice_date, due_date, currency,
				client_id, project_id, estimate_id, note, terms, status, is_recurring, billing_frequency,
				recurring_start_date, recurring_total_count, discount, discount_type,
				sub_total, discount_amount, tax_amount, total, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
			RETURNING id, created_at, updated_at`,
			inv.TenantID, inv.Number, inv.InvoiceDate, inv.DueDate, inv.Currency, inv.ClientID, inv.ProjectID,
			inv.EstimateID, inv.Note, inv.Terms, storedInvoiceStatus(*inv), inv.IsRecurring,
			frequencyValue(inv.BillingFrequency), inv.RecurringStartDate, inv.RecurringTotalCount,
			inv.Discount, string(inv.DiscountType), inv.SubTotal, inv.DiscountAmount, inv.TaxAmount, inv.Total,
			inv.CreatedBy).
			Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	})
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return duplicateNumber(KindInvoice, inv.Number)
		}
		return err
	}
	return r.insertItems(ctx, KindInvoice, inv.ID, inv.Items)
}

func (r *pgTxRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET invoice_date = $3, due_date = $4, currency = $5, client_id = $6,
			project_id = $7, note = $8, terms = $9, is_recurring = $10, billing_frequency = $11,
			discount = $12, discount_type = $13, sub_total = $14, discount_amount = $15, tax_amount = $16,
			total = $17, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`,
		inv.ID, inv.TenantID, inv.InvoiceDate, inv.DueDate, inv.Currency, inv.ClientID, inv.ProjectID,
		inv.Note, inv.Terms, inv.IsRecurring, frequencyValue(inv.BillingFrequency),
		inv.Discount, string(inv.DiscountType), inv.SubTotal, inv.DiscountAmount, inv.TaxAmount,
		inv.Total)
	return err
}

func (r *pgTxRepository) MarkInvoiceSent(ctx context.Context, tenantID, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET status = $3, sent_at = $4, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`, id, tenantID, string(InvoiceUnpaid), at)
	return err
}

// ---------------------------------------------------------------------------
// estimates
// ---------------------------------------------------------------------------

const estimateColumns = `d.id, d.company_id, d.estimate_number, d.valid_till, d.currency, d.client_id, d.project_id,
	COALESCE(d.note, ''), COALESCE(d.terms, ''), d.status, d.discount, d.discount_type,
	d.sub_total, d.discount_amount, d.tax_amount, d.total, d.sent_at, d.created_by, d.created_at, d.updated_at`

func scanEstimate(row pgx.Row) (Estimate, error) {
	var e Estimate
	var dtype string
	err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.ValidTill, &e.Currency, &e.ClientID, &e.ProjectID,
		&e.Note, &e.Terms, &e.Status, &e.Discount, &dtype,
		&e.SubTotal, &e.DiscountAmount, &e.TaxAmount, &e.Total, &e.SentAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	e.DiscountType = docshared.DiscountType(dtype)
	return e, err
}

func (r *pgRepository) getEstimate(ctx context.Context, tenantID, id int64, lock bool) (Estimate, error) {
	query := `SELECT ` + estimateColumns + ` FROM estimates d WHERE d.id = $1 AND d.company_id = $2 AND d.is_deleted = FALSE`
	if lock {
		query += ` FOR UPDATE`
	}
	e, err := scanEstimate(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if shared.IsNoRows(err) {
			return Estimate{}, notFound(KindEstimate, id)
		}
		return Estimate{}, err
	}
	items, err := r.loadItems(ctx, KindEstimate, []int64{e.ID})
	if err != nil {
		return Estimate{}, err
	}
	e.Items = nonNil(items[e.ID])
	return e, nil
}

func (r *pgRepository) GetEstimate(ctx context.Context, tenantID, id int64) (Estimate, error) {
	return r.getEstimate(ctx, tenantID, id, false)
}

func (r *pgTxRepository) LockEstimate(ctx context.Context, tenantID, id int64) (Estimate, error) {
	return r.getEstimate(ctx, tenantID, id, true)
}

func (r *pgRepository) ListEstimates(ctx context.Context, tenantID int64, filter ListFilter) ([]Estimate, int, error) {
	w := baseFilter(tenantID, filter, "estimate_number")
	if filter.Status != "" {
		w.add("UPPER(d.status) = UPPER(?)", filter.Status)
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM estimates d `+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+estimateColumns+` FROM estimates d `+w.sql()+
		` ORDER BY d.created_at DESC, d.id DESC`+w.page(filter), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Estimate{}
	var ids []int64
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	items, err := r.loadItems(ctx, KindEstimate, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = nonNil(items[out[i].ID])
	}
	return out, total, nil
}

func (r *pgTxRepository) InsertEstimate(ctx context.Context, e *Estimate) error {
	err := r.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO estimates (company_id, estimate_number, valid_till, currency, client_id,
				project_id, note, terms, status, discount, discount_type, sub_total, discount_amount, tax_amount,
				total, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			RETURNING id, created_at, updated_at`,
			e.TenantID, e.Number, e.ValidTill, e.Currency, e.ClientID, e.ProjectID, e.Note, e.Terms,
			string(e.Status), e.Discount, string(e.DiscountType), e.SubTotal, e.DiscountAmount, e.TaxAmount,
			e.Total, e.CreatedBy).
			Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	})
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return duplicateNumber(KindEstimate, e.Number)
		}
		return err
	}
	return r.insertItems(ctx, KindEstimate, e.ID, e.Items)
}

func (r *pgTxRepository) UpdateEstimate(ctx context.Context, e Estimate) error {
	_, err := r.tx.Exec(ctx, `UPDATE estimates SET valid_till = $3, currency = $4, client_id = $5, project_id = $6,
			note = $7, terms = $8, discount = $9, discount_type = $10, sub_total = $11, discount_amount = $12,
			tax_amount = $13, total = $14, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`,
		e.ID, e.TenantID, e.ValidTill, e.Currency, e.ClientID, e.ProjectID, e.Note, e.Terms,
		e.Discount, string(e.DiscountType), e.SubTotal, e.DiscountAmount, e.TaxAmount, e.Total)
	return err
}

func (r *pgTxRepository) SetEstimateStatus(ctx context.Context, tenantID, id int64, status EstimateStatus, sentAt *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE estimates SET status = $3, sent_at = COALESCE($4, sent_at), updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND is_deleted = FALSE`, id, tenantID, string(status), sentAt)
	return err
}

// ---------------------------------------------------------------------------
// clients
// ---------------------------------------------------------------------------

func (r *pgRepository) ClientEmail(ctx context.Context, tenantID, clientID int64) (string, error) {
	var email string
	err := r.db.QueryRow(ctx, `SELECT COALESCE(
			(SELECT cc.email FROM client_contacts cc WHERE cc.client_id = c.id AND cc.is_deleted = FALSE
				ORDER BY cc.is_primary DESC, cc.id LIMIT 1),
			c.email, '')
		FROM clients c WHERE c.id = $1 AND c.company_id = $2 AND c.is_deleted = FALSE`, clientID, tenantID).Scan(&email)
	if err != nil {
		if shared.IsNoRows(err) {
			return "", fmt.Errorf("%w: client %d", shared.ErrNotFound, clientID)
		}
		return "", err
	}
	return email, nil
}

func nonNil(items []docshared.LineItem) []docshared.LineItem {
	if items == nil {
		return []docshared.LineItem{}
	}
	return items
}
