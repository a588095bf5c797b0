package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the pgx-backed document store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction, rolling back on error.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) Get(ctx context.Context, tenantID int64, kind Kind, id int64) (*Document, error) {
	return getDocument(ctx, r.pool, `tenant_id=$1 AND kind=$2 AND id=$3`, tenantID, kind, id)
}

// GetByClientID resolves the opaque external-facing id. Expiry is enforced by
// the caller so an expired link can still be distinguished from a dead one.
func (r *Repository) GetByClientID(ctx context.Context, clientID string) (*Document, error) {
	return getDocument(ctx, r.pool, `client_id=$1`, clientID)
}

func (r *Repository) List(ctx context.Context, tenantID int64, req ListRequest) ([]Document, int, error) {
	where := `tenant_id=$1 AND kind=$2`
	args := []any{tenantID, req.Kind}
	if req.CustomerID != 0 {
		args = append(args, req.CustomerID)
		where += fmt.Sprintf(` AND customer_id=$%d`, len(args))
	}
	switch req.Status {
	case StatusDraft:
		where += ` AND draft AND NOT voided`
	case StatusVoided:
		where += ` AND voided`
	case StatusClosed:
		where += ` AND closed AND NOT voided`
	case StatusPaid:
		where += ` AND NOT draft AND NOT closed AND NOT voided AND total > 0 AND balance = 0`
	case StatusOpen:
		where += ` AND NOT draft AND NOT closed AND NOT voided AND (total = 0 OR balance <> 0)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("documents: count: %w", err)
	}

	perPage := req.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+where+
			fmt.Sprintf(` ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("documents: list: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		items, err := loadLineItems(ctx, r.pool, out[i].TenantID, out[i].Kind, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Items = items
	}
	return out, total, nil
}

func (r *Repository) GetPaymentPlan(ctx context.Context, tenantID, invoiceID int64) (*PaymentPlan, error) {
	var plan PaymentPlan
	var installments []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, invoice_id, installments, created_at
		 FROM payment_plans WHERE tenant_id=$1 AND invoice_id=$2`,
		tenantID, invoiceID).Scan(&plan.ID, &plan.TenantID, &plan.InvoiceID, &installments, &plan.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("documents: get payment plan: %w", err)
	}
	if err := json.Unmarshal(installments, &plan.Installments); err != nil {
		return nil, fmt.Errorf("documents: decode installments: %w", err)
	}
	return &plan, nil
}

func (r *Repository) ListTransactions(ctx context.Context, tenantID int64, kind Kind, docID int64) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, document_id, document_kind, type, status, amount, date, gateway_ref, created_at
		 FROM document_transactions
		 WHERE tenant_id=$1 AND document_kind=$2 AND document_id=$3
		 ORDER BY date, id`,
		tenantID, kind, docID)
	if err != nil {
		return nil, fmt.Errorf("documents: list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.TenantID, &t.DocumentID, &t.Kind, &t.Type, &t.Status, &t.Amount, &t.Date, &t.GatewayRef, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// NextNumber increments the tenant's counter for the kind atomically. It runs
// on the pool deliberately: a rolled-back save leaves a gap in the sequence
// instead of serializing all saves on the counter row.
func (r *Repository) NextNumber(ctx context.Context, tenantID int64, kind Kind) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO document_sequences (tenant_id, kind, next_value)
		 VALUES ($1, $2, 2)
		 ON CONFLICT (tenant_id, kind)
		 DO UPDATE SET next_value = document_sequences.next_value + 1
		 RETURNING next_value - 1`,
		tenantID, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("documents: next number: %w", err)
	}
	return n, nil
}

func (r *Repository) SetNext(ctx context.Context, tenantID int64, kind Kind, next int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO document_sequences (tenant_id, kind, next_value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, kind) DO UPDATE SET next_value = EXCLUDED.next_value`,
		tenantID, kind, next)
	return err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Get(ctx context.Context, tenantID int64, kind Kind, id int64) (*Document, error) {
	return getDocument(ctx, r.tx, `tenant_id=$1 AND kind=$2 AND id=$3`, tenantID, kind, id)
}

// InsertDocument writes the aggregate inside a savepoint so a unique-number
// collision rolls back cleanly and the numbering loop can retry within the
// same outer transaction.
func (r *txRepository) InsertDocument(ctx context.Context, doc *Document) (bool, error) {
	sub, err := r.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("documents: savepoint: %w", err)
	}
	defer sub.Rollback(ctx)

	discounts, taxes, shipping, metadata, err := encodeDocumentJSON(doc)
	if err != nil {
		return false, err
	}
	err = sub.QueryRow(ctx,
		`INSERT INTO documents (
			tenant_id, kind, customer_id, currency, number, date, name, notes,
			subtotal, total, balance,
			amount_paid, amount_credited, amount_refunded, amount_applied, credited_to_balance, deposit_paid,
			draft, closed, voided, sent, chase,
			date_paid, date_voided, date_bad_debt,
			pending_transactions, payment_plan_id, invoiced_id,
			client_id, client_id_expires,
			discounts, taxes, shipping, metadata,
			created_at, updated_at
		 ) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
			$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36
		 ) RETURNING id`,
		doc.TenantID, doc.Kind, doc.CustomerID, doc.Currency, doc.Number, doc.Date, doc.Name, doc.Notes,
		doc.Subtotal, doc.Total, doc.Balance,
		doc.AmountPaid, doc.AmountCredited, doc.AmountRefunded, doc.AmountApplied, doc.CreditedToBalance, doc.DepositPaid,
		doc.Draft, doc.Closed, doc.Voided, doc.Sent, doc.Chase,
		doc.DatePaid, doc.DateVoided, doc.DateBadDebt,
		doc.PendingTransactions, doc.PaymentPlanID, doc.InvoicedID,
		doc.ClientID, doc.ClientIDExpires,
		discounts, taxes, shipping, metadata,
		doc.CreatedAt, doc.UpdatedAt).Scan(&doc.ID)
	if isUniqueViolation(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("documents: insert: %w", err)
	}

	for i := range doc.Items {
		doc.Items[i].SetParent(doc.Kind, doc.ID)
		if err := insertLineItem(ctx, sub, doc.TenantID, &doc.Items[i]); err != nil {
			return false, err
		}
	}
	return false, sub.Commit(ctx)
}

func (r *txRepository) UpdateDocument(ctx context.Context, doc *Document, removed []LineItem) (bool, error) {
	sub, err := r.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("documents: savepoint: %w", err)
	}
	defer sub.Rollback(ctx)

	discounts, taxes, shipping, metadata, err := encodeDocumentJSON(doc)
	if err != nil {
		return false, err
	}
	tag, err := sub.Exec(ctx,
		`UPDATE documents SET
			number=$1, date=$2, name=$3, notes=$4,
			subtotal=$5, total=$6, balance=$7,
			draft=$8, closed=$9, voided=$10, sent=$11, chase=$12,
			discounts=$13, taxes=$14, shipping=$15, metadata=$16,
			updated_at=$17
		 WHERE tenant_id=$18 AND kind=$19 AND id=$20`,
		doc.Number, doc.Date, doc.Name, doc.Notes,
		doc.Subtotal, doc.Total, doc.Balance,
		doc.Draft, doc.Closed, doc.Voided, doc.Sent, doc.Chase,
		discounts, taxes, shipping, metadata,
		doc.UpdatedAt,
		doc.TenantID, doc.Kind, doc.ID)
	if isUniqueViolation(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("documents: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, shared.ErrNotFound
	}

	for _, li := range removed {
		if _, err := sub.Exec(ctx, `DELETE FROM line_items WHERE tenant_id=$1 AND id=$2`, doc.TenantID, li.ID); err != nil {
			return false, fmt.Errorf("documents: delete line item: %w", err)
		}
	}
	for i := range doc.Items {
		li := &doc.Items[i]
		li.SetParent(doc.Kind, doc.ID)
		if li.ID == 0 {
			if err := insertLineItem(ctx, sub, doc.TenantID, li); err != nil {
				return false, err
			}
			continue
		}
		if err := updateLineItem(ctx, sub, doc.TenantID, li); err != nil {
			return false, err
		}
	}
	return false, sub.Commit(ctx)
}

func (r *txRepository) DeleteDocument(ctx context.Context, tenantID int64, kind Kind, id int64) error {
	parent := lineItemParentColumn(kind)
	if _, err := r.tx.Exec(ctx, `DELETE FROM line_items WHERE tenant_id=$1 AND `+parent+`=$2`, tenantID, id); err != nil {
		return fmt.Errorf("documents: delete line items: %w", err)
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM documents WHERE tenant_id=$1 AND kind=$2 AND id=$3`, tenantID, kind, id)
	if err != nil {
		return fmt.Errorf("documents: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateBalanceFields writes only counters, flags and dates so a concurrent
// content edit of other fields is not clobbered.
func (r *txRepository) UpdateBalanceFields(ctx context.Context, doc *Document) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE documents SET
			balance=$1,
			amount_paid=$2, amount_credited=$3, amount_refunded=$4, amount_applied=$5,
			credited_to_balance=$6, deposit_paid=$7,
			draft=$8, closed=$9, voided=$10,
			date_paid=$11, date_voided=$12, date_bad_debt=$13,
			pending_transactions=$14, payment_plan_id=$15, invoiced_id=$16,
			client_id=$17, client_id_expires=$18,
			updated_at=$19
		 WHERE tenant_id=$20 AND kind=$21 AND id=$22`,
		doc.Balance,
		doc.AmountPaid, doc.AmountCredited, doc.AmountRefunded, doc.AmountApplied,
		doc.CreditedToBalance, doc.DepositPaid,
		doc.Draft, doc.Closed, doc.Voided,
		doc.DatePaid, doc.DateVoided, doc.DateBadDebt,
		doc.PendingTransactions, doc.PaymentPlanID, doc.InvoicedID,
		doc.ClientID, doc.ClientIDExpires,
		doc.UpdatedAt,
		doc.TenantID, doc.Kind, doc.ID)
	if err != nil {
		return fmt.Errorf("documents: update balance fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn *Transaction) error {
	err := r.tx.QueryRow(ctx,
		`INSERT INTO document_transactions (tenant_id, document_id, document_kind, type, status, amount, date, gateway_ref, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		 RETURNING id, created_at`,
		txn.TenantID, txn.DocumentID, txn.Kind, txn.Type, txn.Status, txn.Amount, txn.Date, txn.GatewayRef).
		Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("documents: insert transaction: %w", err)
	}
	return nil
}

func (r *txRepository) SavePaymentPlan(ctx context.Context, plan *PaymentPlan) error {
	installments, err := json.Marshal(plan.Installments)
	if err != nil {
		return fmt.Errorf("documents: encode installments: %w", err)
	}
	err = r.tx.QueryRow(ctx,
		`INSERT INTO payment_plans (tenant_id, invoice_id, installments, created_at)
		 VALUES ($1,$2,$3,now())
		 ON CONFLICT (tenant_id, invoice_id) DO UPDATE SET installments = EXCLUDED.installments
		 RETURNING id, created_at`,
		plan.TenantID, plan.InvoiceID, installments).Scan(&plan.ID, &plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("documents: save payment plan: %w", err)
	}
	return nil
}

func (r *txRepository) DeletePaymentPlan(ctx context.Context, tenantID, invoiceID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM payment_plans WHERE tenant_id=$1 AND invoice_id=$2`, tenantID, invoiceID)
	if err != nil {
		return fmt.Errorf("documents: delete payment plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const documentColumns = `id, tenant_id, kind, customer_id, currency, number, date, name, notes,
	subtotal, total, balance,
	amount_paid, amount_credited, amount_refunded, amount_applied, credited_to_balance, deposit_paid,
	draft, closed, voided, sent, chase,
	date_paid, date_voided, date_bad_debt,
	pending_transactions, payment_plan_id, invoiced_id,
	client_id, client_id_expires,
	discounts, taxes, shipping, metadata,
	created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var discounts, taxes, shipping, metadata []byte
	err := row.Scan(
		&d.ID, &d.TenantID, &d.Kind, &d.CustomerID, &d.Currency, &d.Number, &d.Date, &d.Name, &d.Notes,
		&d.Subtotal, &d.Total, &d.Balance,
		&d.AmountPaid, &d.AmountCredited, &d.AmountRefunded, &d.AmountApplied, &d.CreditedToBalance, &d.DepositPaid,
		&d.Draft, &d.Closed, &d.Voided, &d.Sent, &d.Chase,
		&d.DatePaid, &d.DateVoided, &d.DateBadDebt,
		&d.PendingTransactions, &d.PaymentPlanID, &d.InvoicedID,
		&d.ClientID, &d.ClientIDExpires,
		&discounts, &taxes, &shipping, &metadata,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("documents: scan: %w", err)
	}
	if err := decodeJSON(discounts, &d.Discounts); err != nil {
		return nil, err
	}
	if err := decodeJSON(taxes, &d.Taxes); err != nil {
		return nil, err
	}
	if err := decodeJSON(shipping, &d.Shipping); err != nil {
		return nil, err
	}
	if err := decodeJSON(metadata, &d.Metadata); err != nil {
		return nil, err
	}
	return &d, nil
}

func getDocument(ctx context.Context, q querier, where string, args ...any) (*Document, error) {
	doc, err := scanDocument(q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+where, args...))
	if err != nil {
		return nil, err
	}
	doc.Items, err = loadLineItems(ctx, q, doc.TenantID, doc.Kind, doc.ID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

const lineItemColumns = `id, tenant_id, type, name, description, quantity, unit_cost, amount,
	discountable, taxable, catalog_item_id, discounts, taxes, metadata, sort_order`

func loadLineItems(ctx context.Context, q querier, tenantID int64, kind Kind, docID int64) ([]LineItem, error) {
	parent := lineItemParentColumn(kind)
	rows, err := q.Query(ctx,
		`SELECT `+lineItemColumns+` FROM line_items WHERE tenant_id=$1 AND `+parent+`=$2 ORDER BY sort_order, id`,
		tenantID, docID)
	if err != nil {
		return nil, fmt.Errorf("documents: load line items: %w", err)
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var li LineItem
		var discounts, taxes, metadata []byte
		err := rows.Scan(&li.ID, &li.TenantID, &li.Type, &li.Name, &li.Description,
			&li.Quantity, &li.UnitCost, &li.Amount,
			&li.Discountable, &li.Taxable, &li.CatalogItemID,
			&discounts, &taxes, &metadata, &li.Order)
		if err != nil {
			return nil, fmt.Errorf("documents: scan line item: %w", err)
		}
		if err := decodeJSON(discounts, &li.Discounts); err != nil {
			return nil, err
		}
		if err := decodeJSON(taxes, &li.Taxes); err != nil {
			return nil, err
		}
		if err := decodeJSON(metadata, &li.Metadata); err != nil {
			return nil, err
		}
		li.SetParent(kind, docID)
		out = append(out, li)
	}
	return out, rows.Err()
}

func insertLineItem(ctx context.Context, q querier, tenantID int64, li *LineItem) error {
	discounts, taxes, metadata, err := encodeLineItemJSON(li)
	if err != nil {
		return err
	}
	err = q.QueryRow(ctx,
		`INSERT INTO line_items (
			tenant_id, invoice_id, credit_note_id, estimate_id, customer_id,
			type, name, description, quantity, unit_cost, amount,
			discountable, taxable, catalog_item_id, discounts, taxes, metadata, sort_order
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		 RETURNING id`,
		tenantID, li.InvoiceID, li.CreditNoteID, li.EstimateID, li.CustomerID,
		li.Type, li.Name, li.Description, li.Quantity, li.UnitCost, li.Amount,
		li.Discountable, li.Taxable, li.CatalogItemID, discounts, taxes, metadata, li.Order).
		Scan(&li.ID)
	if err != nil {
		return fmt.Errorf("documents: insert line item: %w", err)
	}
	return nil
}

func updateLineItem(ctx context.Context, q querier, tenantID int64, li *LineItem) error {
	discounts, taxes, metadata, err := encodeLineItemJSON(li)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE line_items SET
			type=$1, name=$2, description=$3, quantity=$4, unit_cost=$5, amount=$6,
			discountable=$7, taxable=$8, catalog_item_id=$9,
			discounts=$10, taxes=$11, metadata=$12, sort_order=$13
		 WHERE tenant_id=$14 AND id=$15`,
		li.Type, li.Name, li.Description, li.Quantity, li.UnitCost, li.Amount,
		li.Discountable, li.Taxable, li.CatalogItemID,
		discounts, taxes, metadata, li.Order,
		tenantID, li.ID)
	if err != nil {
		return fmt.Errorf("documents: update line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func lineItemParentColumn(kind Kind) string {
	switch kind {
	case KindCreditNote:
		return "credit_note_id"
	case KindEstimate:
		return "estimate_id"
	default:
		return "invoice_id"
	}
}

func encodeDocumentJSON(doc *Document) (discounts, taxes, shipping, metadata []byte, err error) {
	if discounts, err = encodeJSON(doc.Discounts); err != nil {
		return
	}
	if taxes, err = encodeJSON(doc.Taxes); err != nil {
		return
	}
	if shipping, err = encodeJSON(doc.Shipping); err != nil {
		return
	}
	metadata, err = encodeJSON(doc.Metadata)
	return
}

func encodeLineItemJSON(li *LineItem) (discounts, taxes, metadata []byte, err error) {
	if discounts, err = encodeJSON(li.Discounts); err != nil {
		return
	}
	if taxes, err = encodeJSON(li.Taxes); err != nil {
		return
	}
	metadata, err = encodeJSON(li.Metadata)
	return
}

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("documents: encode json: %w", err)
	}
	return b, nil
}

func decodeJSON(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("documents: decode json: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
