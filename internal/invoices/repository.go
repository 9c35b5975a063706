package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billfold/billfold/internal/platform/db"
	"github.com/billfold/billfold/internal/shared"
)

// Repository provides persistence for invoice aggregates. WithTx yields a
// transaction-bound repository so multi-write operations commit atomically.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, companyID, id int64) (*Invoice, error)
	GetByURLKey(ctx context.Context, urlKey string) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	Create(ctx context.Context, inv *Invoice) (int64, error)
	Update(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, companyID, id int64) error
	SetNumber(ctx context.Context, id int64, number string, seriesID int64) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	SetReadOnly(ctx context.Context, id int64, readOnly bool) error
	ListRecurringDue(ctx context.Context, asOf time.Time) ([]Invoice, error)
	ScheduleNextRecurrence(ctx context.Context, id int64, next time.Time) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const invoiceColumns = `id, company_id, number, url_key, client_id, created_by, series_id,
	status, sign, is_read_only, credit_parent_id, quote_id, date, due_date,
	is_recurring, recur_frequency, recur_next_date, terms, notes,
	access_password, subtotal, item_tax_total, tax_total, discount_amount, discount_percent,
	total, paid, balance, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.CompanyID, &inv.Number, &inv.URLKey, &inv.ClientID, &inv.CreatedBy, &inv.SeriesID,
		&inv.Status, &inv.Sign, &inv.IsReadOnly, &inv.CreditParentID, &inv.QuoteID, &inv.Date, &inv.DueDate,
		&inv.IsRecurring, &inv.RecurFrequency, &inv.RecurNextDate,
		&inv.Terms, &inv.Notes, &inv.AccessPassword, &inv.Subtotal, &inv.ItemTaxTotal, &inv.TaxTotal,
		&inv.DiscountAmount, &inv.DiscountPercent, &inv.Total, &inv.Paid, &inv.Balance,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM invoices WHERE company_id = $1 AND id = $2", invoiceColumns),
		companyID, id))
	if err != nil {
		return nil, err
	}
	return r.loadDetails(ctx, inv)
}

func (r *repository) GetByURLKey(ctx context.Context, urlKey string) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM invoices WHERE url_key = $1", invoiceColumns), urlKey))
	if err != nil {
		return nil, err
	}
	return r.loadDetails(ctx, inv)
}

func (r *repository) loadDetails(ctx context.Context, inv *Invoice) (*Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, name, description, quantity, price, discount_amount,
		       tax_rate_id, tax_percent, position, subtotal, discount, tax, total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY position, id`, inv.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Name, &it.Description, &it.Quantity, &it.Price,
			&it.DiscountAmount, &it.TaxRateID, &it.TaxPercent, &it.Position,
			&it.Subtotal, &it.Discount, &it.Tax, &it.Total); err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	taxRows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, tax_rate_id, tax_percent, include_item_tax, amount
		FROM invoice_taxes WHERE invoice_id = $1 ORDER BY id`, inv.ID)
	if err != nil {
		return nil, err
	}
	defer taxRows.Close()
	for taxRows.Next() {
		var t DocumentTax
		if err := taxRows.Scan(&t.ID, &t.InvoiceID, &t.TaxRateID, &t.TaxPercent, &t.IncludeItemTax, &t.Amount); err != nil {
			return nil, err
		}
		inv.Taxes = append(inv.Taxes, t)
	}
	return inv, taxRows.Err()
}

func (r *repository) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	conditions := []string{"company_id = $1"}
	args := []interface{}{req.CompanyID}

	if req.ClientID > 0 {
		args = append(args, req.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if req.Overdue {
		conditions = append(conditions,
			"status NOT IN ('draft', 'paid')", "balance > 0", "due_date < NOW()", "sign = 1")
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(number ILIKE $%d OR notes ILIKE $%d)", len(args), len(args)))
	}

	where := "WHERE " + conditions[0]
	for _, c := range conditions[1:] {
		where += " AND " + c
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := shared.NewPagination(req.Page, req.PerPage, total)
	args = append(args, p.PerPage, (p.Page-1)*p.PerPage)
	rows, err := r.db.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM invoices %s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d",
		invoiceColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, inv *Invoice) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		id, err = InsertTx(ctx, tx, inv)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertTx writes the invoice header, items, and taxes inside the given
// transaction. Shared with the quotation conversion path, which must commit
// the new invoice and the quote back-reference together.
func InsertTx(ctx context.Context, tx pgx.Tx, inv *Invoice) (int64, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO invoices (company_id, number, url_key, client_id, created_by, series_id,
			status, sign, is_read_only, credit_parent_id, quote_id, date, due_date,
			is_recurring, recur_frequency, recur_next_date, terms, notes,
			access_password, subtotal, item_tax_total, tax_total, discount_amount, discount_percent,
			total, paid, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, NOW(), NOW())
		RETURNING id`,
		inv.CompanyID, inv.Number, inv.URLKey, inv.ClientID, inv.CreatedBy, inv.SeriesID,
		inv.Status, inv.Sign, inv.IsReadOnly, inv.CreditParentID, inv.QuoteID, inv.Date, inv.DueDate,
		inv.IsRecurring, inv.RecurFrequency, inv.RecurNextDate,
		inv.Terms, inv.Notes, inv.AccessPassword, inv.Subtotal, inv.ItemTaxTotal, inv.TaxTotal,
		inv.DiscountAmount, inv.DiscountPercent, inv.Total, inv.Paid, inv.Balance,
	).Scan(&inv.ID)
	if err != nil {
		return 0, err
	}
	if err := insertDetailsTx(ctx, tx, inv.ID, inv.Items, inv.Taxes); err != nil {
		return 0, err
	}
	return inv.ID, nil
}

func insertDetailsTx(ctx context.Context, tx pgx.Tx, invoiceID int64, items []LineItem, taxes []DocumentTax) error {
	for i, it := range items {
		if err := tx.QueryRow(ctx, `
			INSERT INTO invoice_items (invoice_id, name, description, quantity, price, discount_amount,
				tax_rate_id, tax_percent, position, subtotal, discount, tax, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id`,
			invoiceID, it.Name, it.Description, it.Quantity, it.Price, it.DiscountAmount,
			it.TaxRateID, it.TaxPercent, i, it.Subtotal, it.Discount, it.Tax, it.Total,
		).Scan(&items[i].ID); err != nil {
			return err
		}
		items[i].InvoiceID = invoiceID
		items[i].Position = i
	}
	for i, t := range taxes {
		if err := tx.QueryRow(ctx, `
			INSERT INTO invoice_taxes (invoice_id, tax_rate_id, tax_percent, include_item_tax, amount)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			invoiceID, t.TaxRateID, t.TaxPercent, t.IncludeItemTax, t.Amount,
		).Scan(&taxes[i].ID); err != nil {
			return err
		}
		taxes[i].InvoiceID = invoiceID
	}
	return nil
}

// Update rewrites the header and replaces items and taxes wholesale.
func (r *repository) Update(ctx context.Context, inv *Invoice) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE invoices
			SET client_id = $3, date = $4, due_date = $5, is_recurring = $6, recur_frequency = $7,
				recur_next_date = $8, terms = $9, notes = $10, access_password = $11,
				subtotal = $12, item_tax_total = $13, tax_total = $14, discount_amount = $15,
				discount_percent = $16, total = $17, paid = $18, balance = $19, updated_at = NOW()
			WHERE company_id = $1 AND id = $2`,
			inv.CompanyID, inv.ID, inv.ClientID, inv.Date, inv.DueDate,
			inv.IsRecurring, inv.RecurFrequency, inv.RecurNextDate, inv.Terms, inv.Notes,
			inv.AccessPassword, inv.Subtotal, inv.ItemTaxTotal, inv.TaxTotal, inv.DiscountAmount,
			inv.DiscountPercent, inv.Total, inv.Paid, inv.Balance)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, "DELETE FROM invoice_items WHERE invoice_id = $1", inv.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM invoice_taxes WHERE invoice_id = $1", inv.ID); err != nil {
			return err
		}
		return insertDetailsTx(ctx, tx, inv.ID, inv.Items, inv.Taxes)
	})
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM payments WHERE invoice_id = $1", id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM invoice_items WHERE invoice_id = $1", id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM invoice_taxes WHERE invoice_id = $1", id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, "DELETE FROM invoices WHERE company_id = $1 AND id = $2", companyID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func (r *repository) SetNumber(ctx context.Context, id int64, number string, seriesID int64) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE invoices SET number = $2, series_id = $3, updated_at = NOW() WHERE id = $1",
		id, number, seriesID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListRecurringDue returns recurring invoice headers whose next run date has
// elapsed, across all companies.
func (r *repository) ListRecurringDue(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM invoices WHERE is_recurring AND recur_next_date <= $1 ORDER BY id",
		invoiceColumns), asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *repository) ScheduleNextRecurrence(ctx context.Context, id int64, next time.Time) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE invoices SET recur_next_date = $2, updated_at = NOW() WHERE id = $1", id, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetReadOnly(ctx context.Context, id int64, readOnly bool) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE invoices SET is_read_only = $2, updated_at = NOW() WHERE id = $1", id, readOnly)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
