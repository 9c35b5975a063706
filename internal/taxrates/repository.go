package taxrates

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billfold/billfold/internal/platform/db"
	"github.com/billfold/billfold/internal/shared"
)

// Repository provides PostgreSQL backed persistence for tax rates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns the company's tax rates, active ones first.
func (r *Repository) List(ctx context.Context, companyID int64) ([]TaxRate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, name, percent, is_default, is_active, created_at, updated_at
		FROM tax_rates
		WHERE company_id = $1
		ORDER BY is_active DESC, name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaxRate
	for rows.Next() {
		var t TaxRate
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.Percent, &t.IsDefault, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get retrieves a tax rate by id within the company scope.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (*TaxRate, error) {
	var t TaxRate
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, name, percent, is_default, is_active, created_at, updated_at
		FROM tax_rates
		WHERE company_id = $1 AND id = $2`, companyID, id,
	).Scan(&t.ID, &t.CompanyID, &t.Name, &t.Percent, &t.IsDefault, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a tax rate. When IsDefault is set the company's other
// defaults are cleared in the same transaction.
func (r *Repository) Create(ctx context.Context, t TaxRate) (*TaxRate, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if t.IsDefault {
			if _, err := tx.Exec(ctx,
				"UPDATE tax_rates SET is_default = FALSE, updated_at = NOW() WHERE company_id = $1 AND is_default",
				t.CompanyID); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO tax_rates (company_id, name, percent, is_default, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			t.CompanyID, t.Name, t.Percent, t.IsDefault, t.IsActive,
		).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Update rewrites a tax rate, clearing sibling defaults when needed.
func (r *Repository) Update(ctx context.Context, t TaxRate) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if t.IsDefault {
			if _, err := tx.Exec(ctx,
				"UPDATE tax_rates SET is_default = FALSE, updated_at = NOW() WHERE company_id = $1 AND id <> $2 AND is_default",
				t.CompanyID, t.ID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE tax_rates
			SET name = $3, percent = $4, is_default = $5, is_active = $6, updated_at = NOW()
			WHERE company_id = $1 AND id = $2`,
			t.CompanyID, t.ID, t.Name, t.Percent, t.IsDefault, t.IsActive)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// Delete removes a tax rate.
func (r *Repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM tax_rates WHERE company_id = $1 AND id = $2", companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
