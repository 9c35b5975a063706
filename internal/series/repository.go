package series

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billfold/billfold/internal/platform/db"
	"github.com/billfold/billfold/internal/shared"
)

// Repository provides PostgreSQL backed persistence for number series.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const seriesColumns = `id, company_id, name, document_type, identifier_format,
	next_id, left_pad, is_default, is_active, created_at, updated_at`

func scanSeries(row pgx.Row) (*NumberSeries, error) {
	var s NumberSeries
	err := row.Scan(&s.ID, &s.CompanyID, &s.Name, &s.DocumentType, &s.IdentifierFormat,
		&s.NextID, &s.LeftPad, &s.IsDefault, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns active series of a company, optionally narrowed by the
// document type they accept.
func (r *Repository) List(ctx context.Context, companyID int64, docType DocumentType) ([]NumberSeries, error) {
	query := "SELECT " + seriesColumns + " FROM number_series WHERE company_id = $1 AND is_active"
	args := []any{companyID}
	if docType == DocTypeInvoice || docType == DocTypeQuotation {
		query += " AND document_type IN ($2, 'both')"
		args = append(args, string(docType))
	}
	query += " ORDER BY name"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NumberSeries
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Get retrieves a series by id within the company scope.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (*NumberSeries, error) {
	return scanSeries(r.pool.QueryRow(ctx,
		"SELECT "+seriesColumns+" FROM number_series WHERE company_id = $1 AND id = $2",
		companyID, id))
}

// Create inserts a series, clearing sibling defaults when IsDefault is set.
func (r *Repository) Create(ctx context.Context, s NumberSeries) (*NumberSeries, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if s.IsDefault {
			if err := clearDefaults(ctx, tx, s.CompanyID, s.DocumentType, 0); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO number_series (
				company_id, name, document_type, identifier_format,
				next_id, left_pad, is_default, is_active, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			s.CompanyID, s.Name, s.DocumentType, s.IdentifierFormat,
			s.NextID, s.LeftPad, s.IsDefault, s.IsActive,
		).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Update rewrites a series. The counter is deliberately not updatable here;
// only the allocator advances it.
func (r *Repository) Update(ctx context.Context, s NumberSeries) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if s.IsDefault {
			if err := clearDefaults(ctx, tx, s.CompanyID, s.DocumentType, s.ID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE number_series
			SET name = $3, document_type = $4, identifier_format = $5,
				left_pad = $6, is_default = $7, is_active = $8, updated_at = NOW()
			WHERE company_id = $1 AND id = $2`,
			s.CompanyID, s.ID, s.Name, s.DocumentType, s.IdentifierFormat,
			s.LeftPad, s.IsDefault, s.IsActive)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// Delete removes a series.
func (r *Repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM number_series WHERE company_id = $1 AND id = $2", companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetDefault marks one series default and clears every sibling of the same
// (company, document type) in the same transaction.
func (r *Repository) SetDefault(ctx context.Context, companyID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var docType DocumentType
		err := tx.QueryRow(ctx,
			"SELECT document_type FROM number_series WHERE company_id = $1 AND id = $2",
			companyID, id).Scan(&docType)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := clearDefaults(ctx, tx, companyID, docType, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			"UPDATE number_series SET is_default = TRUE, updated_at = NOW() WHERE company_id = $1 AND id = $2",
			companyID, id)
		return err
	})
}

func clearDefaults(ctx context.Context, tx pgx.Tx, companyID int64, docType DocumentType, keepID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE number_series
		SET is_default = FALSE, updated_at = NOW()
		WHERE company_id = $1 AND document_type = $2 AND id <> $3 AND is_default`,
		companyID, docType, keepID)
	return err
}

// Reserve atomically claims the current sequence value and advances the
// counter in one statement, so two concurrent allocations can never observe
// the same value.
func (r *Repository) Reserve(ctx context.Context, seriesID int64) (seq int64, format string, leftPad int, err error) {
	err = r.pool.QueryRow(ctx, `
		UPDATE number_series
		SET next_id = next_id + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING next_id - 1, identifier_format, left_pad`, seriesID,
	).Scan(&seq, &format, &leftPad)
	if errors.Is(err, pgx.ErrNoRows) {
		err = shared.ErrNotFound
	}
	return seq, format, leftPad, err
}

// IncrementNextID advances the counter only when it still holds expected,
// for callers that issued a number from a previously read snapshot.
func (r *Repository) IncrementNextID(ctx context.Context, seriesID, expected int64) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE number_series SET next_id = next_id + 1, updated_at = NOW() WHERE id = $1 AND next_id = $2",
		seriesID, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrency
	}
	return nil
}

// Resolve walks the default-series selection chain: explicit id, company
// default for the document type, any active series accepting the type, then
// any active series at all.
func (r *Repository) Resolve(ctx context.Context, companyID int64, docType DocumentType, explicitID int64) (*NumberSeries, error) {
	if explicitID > 0 {
		s, err := r.Get(ctx, companyID, explicitID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	s, err := scanSeries(r.pool.QueryRow(ctx,
		"SELECT "+seriesColumns+` FROM number_series
		WHERE company_id = $1 AND document_type = $2 AND is_default AND is_active
		LIMIT 1`, companyID, docType))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	s, err = scanSeries(r.pool.QueryRow(ctx,
		"SELECT "+seriesColumns+` FROM number_series
		WHERE company_id = $1 AND document_type IN ($2, 'both') AND is_active
		ORDER BY is_default DESC, id
		LIMIT 1`, companyID, docType))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	s, err = scanSeries(r.pool.QueryRow(ctx,
		"SELECT "+seriesColumns+` FROM number_series
		WHERE company_id = $1 AND is_active
		ORDER BY id
		LIMIT 1`, companyID))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrNoSeriesAvailable
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
