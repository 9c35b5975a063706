package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/platform/db"
	"github.com/billfold/billfold/internal/shared"
)

// Repository provides persistence for quotation aggregates.
type Repository interface {
	Get(ctx context.Context, companyID, id int64) (*Quotation, error)
	GetByURLKey(ctx context.Context, urlKey string) (*Quotation, error)
	List(ctx context.Context, req ListQuotesRequest) ([]Quotation, int, error)
	Create(ctx context.Context, q *Quotation) (int64, error)
	Update(ctx context.Context, q *Quotation) error
	Delete(ctx context.Context, companyID, id int64) error
	SetNumber(ctx context.Context, id int64, number string, seriesID int64) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// ConvertToInvoice creates the invoice and sets the quote's invoice
	// back-reference plus approved status in one transaction. A quote that
	// already carries an invoice reference makes the whole operation fail
	// with a conflict; nothing persists.
	ConvertToInvoice(ctx context.Context, quoteID int64, inv *invoices.Invoice) (int64, error)
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

const quoteColumns = `id, company_id, number, url_key, client_id, created_by, series_id,
	status, invoice_id, date, expiry_date, terms, notes, access_password,
	subtotal, item_tax_total, tax_total, discount_amount, discount_percent, total,
	created_at, updated_at`

func scanQuote(row pgx.Row) (*Quotation, error) {
	var q Quotation
	err := row.Scan(
		&q.ID, &q.CompanyID, &q.Number, &q.URLKey, &q.ClientID, &q.CreatedBy, &q.SeriesID,
		&q.Status, &q.InvoiceID, &q.Date, &q.ExpiryDate, &q.Terms, &q.Notes, &q.AccessPassword,
		&q.Subtotal, &q.ItemTaxTotal, &q.TaxTotal, &q.DiscountAmount, &q.DiscountPercent, &q.Total,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	q.Converted = q.InvoiceID != nil
	return &q, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Quotation, error) {
	q, err := scanQuote(r.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM quotations WHERE company_id = $1 AND id = $2", quoteColumns),
		companyID, id))
	if err != nil {
		return nil, err
	}
	return r.loadDetails(ctx, q)
}

func (r *repository) GetByURLKey(ctx context.Context, urlKey string) (*Quotation, error) {
	q, err := scanQuote(r.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM quotations WHERE url_key = $1", quoteColumns), urlKey))
	if err != nil {
		return nil, err
	}
	return r.loadDetails(ctx, q)
}

func (r *repository) loadDetails(ctx context.Context, q *Quotation) (*Quotation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, name, description, quantity, price, discount_amount,
		       tax_rate_id, tax_percent, position, subtotal, discount, tax, total
		FROM quote_items WHERE quote_id = $1 ORDER BY position, id`, q.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it QuoteItem
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.Name, &it.Description, &it.Quantity, &it.Price,
			&it.DiscountAmount, &it.TaxRateID, &it.TaxPercent, &it.Position,
			&it.Subtotal, &it.Discount, &it.Tax, &it.Total); err != nil {
			return nil, err
		}
		q.Items = append(q.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	taxRows, err := r.db.Query(ctx, `
		SELECT id, quote_id, tax_rate_id, tax_percent, include_item_tax, amount
		FROM quote_taxes WHERE quote_id = $1 ORDER BY id`, q.ID)
	if err != nil {
		return nil, err
	}
	defer taxRows.Close()
	for taxRows.Next() {
		var t QuoteTax
		if err := taxRows.Scan(&t.ID, &t.QuoteID, &t.TaxRateID, &t.TaxPercent, &t.IncludeItemTax, &t.Amount); err != nil {
			return nil, err
		}
		q.Taxes = append(q.Taxes, t)
	}
	return q, taxRows.Err()
}

func (r *repository) List(ctx context.Context, req ListQuotesRequest) ([]Quotation, int, error) {
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
	if req.Converted != nil {
		if *req.Converted {
			conditions = append(conditions, "invoice_id IS NOT NULL")
		} else {
			conditions = append(conditions, "invoice_id IS NULL")
		}
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
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotations "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := shared.NewPagination(req.Page, req.PerPage, total)
	args = append(args, p.PerPage, (p.Page-1)*p.PerPage)
	rows, err := r.db.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM quotations %s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d",
		quoteColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Quotation
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q *Quotation) (int64, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO quotations (company_id, number, url_key, client_id, created_by, series_id,
				status, invoice_id, date, expiry_date, terms, notes, access_password,
				subtotal, item_tax_total, tax_total, discount_amount, discount_percent, total,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18, $19, NOW(), NOW())
			RETURNING id`,
			q.CompanyID, q.Number, q.URLKey, q.ClientID, q.CreatedBy, q.SeriesID,
			q.Status, q.InvoiceID, q.Date, q.ExpiryDate, q.Terms, q.Notes, q.AccessPassword,
			q.Subtotal, q.ItemTaxTotal, q.TaxTotal, q.DiscountAmount, q.DiscountPercent, q.Total,
		).Scan(&q.ID); err != nil {
			return err
		}
		return insertDetailsTx(ctx, tx, q.ID, q.Items, q.Taxes)
	})
	if err != nil {
		return 0, err
	}
	return q.ID, nil
}

func insertDetailsTx(ctx context.Context, tx pgx.Tx, quoteID int64, items []QuoteItem, taxes []QuoteTax) error {
	for i, it := range items {
		if err := tx.QueryRow(ctx, `
			INSERT INTO quote_items (quote_id, name, description, quantity, price, discount_amount,
				tax_rate_id, tax_percent, position, subtotal, discount, tax, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id`,
			quoteID, it.Name, it.Description, it.Quantity, it.Price, it.DiscountAmount,
			it.TaxRateID, it.TaxPercent, i, it.Subtotal, it.Discount, it.Tax, it.Total,
		).Scan(&items[i].ID); err != nil {
			return err
		}
		items[i].QuoteID = quoteID
		items[i].Position = i
	}
	for i, t := range taxes {
		if err := tx.QueryRow(ctx, `
			INSERT INTO quote_taxes (quote_id, tax_rate_id, tax_percent, include_item_tax, amount)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			quoteID, t.TaxRateID, t.TaxPercent, t.IncludeItemTax, t.Amount,
		).Scan(&taxes[i].ID); err != nil {
			return err
		}
		taxes[i].QuoteID = quoteID
	}
	return nil
}

// Update rewrites the header and replaces items and taxes wholesale.
func (r *repository) Update(ctx context.Context, q *Quotation) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE quotations
			SET client_id = $3, date = $4, expiry_date = $5, terms = $6, notes = $7, access_password = $8,
				subtotal = $9, item_tax_total = $10, tax_total = $11, discount_amount = $12,
				discount_percent = $13, total = $14, updated_at = NOW()
			WHERE company_id = $1 AND id = $2`,
			q.CompanyID, q.ID, q.ClientID, q.Date, q.ExpiryDate, q.Terms, q.Notes, q.AccessPassword,
			q.Subtotal, q.ItemTaxTotal, q.TaxTotal, q.DiscountAmount, q.DiscountPercent, q.Total)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, "DELETE FROM quote_items WHERE quote_id = $1", q.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM quote_taxes WHERE quote_id = $1", q.ID); err != nil {
			return err
		}
		return insertDetailsTx(ctx, tx, q.ID, q.Items, q.Taxes)
	})
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM quote_items WHERE quote_id = $1", id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM quote_taxes WHERE quote_id = $1", id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, "DELETE FROM quotations WHERE company_id = $1 AND id = $2", companyID, id)
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
		"UPDATE quotations SET number = $2, series_id = $3, updated_at = NOW() WHERE id = $1",
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
		"UPDATE quotations SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ConvertToInvoice(ctx context.Context, quoteID int64, inv *invoices.Invoice) (int64, error) {
	var invoiceID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		id, err := invoices.InsertTx(ctx, tx, inv)
		if err != nil {
			return err
		}
		// The IS NULL guard makes a lost conversion race roll the invoice
		// back instead of double-linking.
		tag, err := tx.Exec(ctx, `
			UPDATE quotations
			SET invoice_id = $2, status = $3, updated_at = NOW()
			WHERE id = $1 AND invoice_id IS NULL`,
			quoteID, id, StatusApproved)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: quotation %d already converted", shared.ErrConflict, quoteID)
		}
		invoiceID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return invoiceID, nil
}
