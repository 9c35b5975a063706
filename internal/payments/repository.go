package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/platform/db"
	"github.com/billfold/billfold/internal/shared"
)

// InvoiceFinancials is the slice of an invoice the ledger reads and writes.
type InvoiceFinancials struct {
	ID     int64
	Total  float64
	Status invoices.Status
}

// ReconcileFunc maps the locked invoice state and the current payment sum to
// the figures to persist.
type ReconcileFunc func(inv InvoiceFinancials, paidSum float64) (paid, balance float64, status invoices.Status)

// Repository provides persistence for payments, payment methods, and the
// ledger reconciliation primitive.
type Repository interface {
	Get(ctx context.Context, companyID, id int64) (*Payment, error)
	ListByInvoice(ctx context.Context, companyID, invoiceID int64) ([]Payment, error)
	Create(ctx context.Context, p Payment) (*Payment, error)
	Update(ctx context.Context, p Payment) error
	Delete(ctx context.Context, companyID, id int64) error
	// Reconcile locks the invoice row, sums its payments, applies fn, and
	// writes the result, all in one serialized transaction. Lost races are
	// retried a bounded number of times before ErrConcurrency surfaces.
	Reconcile(ctx context.Context, invoiceID int64, fn ReconcileFunc) error

	ListMethods(ctx context.Context, companyID int64) ([]PaymentMethod, error)
	GetMethod(ctx context.Context, companyID, id int64) (*PaymentMethod, error)
	CreateMethod(ctx context.Context, m PaymentMethod) (*PaymentMethod, error)
	UpdateMethod(ctx context.Context, m PaymentMethod) error
	DeleteMethod(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const paymentColumns = "id, company_id, invoice_id, method_id, amount, date, note, created_by, created_at, updated_at"

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.CompanyID, &p.InvoiceID, &p.MethodID, &p.Amount, &p.Date, &p.Note,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM payments WHERE company_id = $1 AND id = $2", paymentColumns),
		companyID, id))
}

func (r *repository) ListByInvoice(ctx context.Context, companyID, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM payments WHERE company_id = $1 AND invoice_id = $2 ORDER BY date, id", paymentColumns),
		companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Payment) (*Payment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payments (company_id, invoice_id, method_id, amount, date, note, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		p.CompanyID, p.InvoiceID, p.MethodID, p.Amount, p.Date, p.Note, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Update(ctx context.Context, p Payment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET method_id = $3, amount = $4, date = $5, note = $6, updated_at = NOW()
		WHERE company_id = $1 AND id = $2`,
		p.CompanyID, p.ID, p.MethodID, p.Amount, p.Date, p.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM payments WHERE company_id = $1 AND id = $2", companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Reconcile(ctx context.Context, invoiceID int64, fn ReconcileFunc) error {
	err := db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		var inv InvoiceFinancials
		err := tx.QueryRow(ctx,
			"SELECT id, total, status FROM invoices WHERE id = $1 FOR UPDATE", invoiceID,
		).Scan(&inv.ID, &inv.Total, &inv.Status)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return err
		}

		var sum float64
		if err := tx.QueryRow(ctx,
			"SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1", invoiceID,
		).Scan(&sum); err != nil {
			return err
		}

		paid, balance, status := fn(inv, sum)
		_, err = tx.Exec(ctx,
			"UPDATE invoices SET paid = $2, balance = $3, status = $4, updated_at = NOW() WHERE id = $1",
			invoiceID, paid, balance, status)
		return err
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: invoice %d reconciliation", shared.ErrConcurrency, invoiceID)
	}
	return err
}

const methodColumns = "id, company_id, name, description, is_default, is_active, created_at, updated_at"

func scanMethod(row pgx.Row) (*PaymentMethod, error) {
	var m PaymentMethod
	err := row.Scan(&m.ID, &m.CompanyID, &m.Name, &m.Description, &m.IsDefault, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) ListMethods(ctx context.Context, companyID int64) ([]PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM payment_methods WHERE company_id = $1 ORDER BY is_active DESC, name", methodColumns),
		companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *repository) GetMethod(ctx context.Context, companyID, id int64) (*PaymentMethod, error) {
	return scanMethod(r.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM payment_methods WHERE company_id = $1 AND id = $2", methodColumns),
		companyID, id))
}

func (r *repository) CreateMethod(ctx context.Context, m PaymentMethod) (*PaymentMethod, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if m.IsDefault {
			if _, err := tx.Exec(ctx,
				"UPDATE payment_methods SET is_default = FALSE, updated_at = NOW() WHERE company_id = $1 AND is_default",
				m.CompanyID); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO payment_methods (company_id, name, description, is_default, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			m.CompanyID, m.Name, m.Description, m.IsDefault, m.IsActive,
		).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) UpdateMethod(ctx context.Context, m PaymentMethod) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if m.IsDefault {
			if _, err := tx.Exec(ctx,
				"UPDATE payment_methods SET is_default = FALSE, updated_at = NOW() WHERE company_id = $1 AND id <> $2 AND is_default",
				m.CompanyID, m.ID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE payment_methods
			SET name = $3, description = $4, is_default = $5, is_active = $6, updated_at = NOW()
			WHERE company_id = $1 AND id = $2`,
			m.CompanyID, m.ID, m.Name, m.Description, m.IsDefault, m.IsActive)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func (r *repository) DeleteMethod(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM payment_methods WHERE company_id = $1 AND id = $2", companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
