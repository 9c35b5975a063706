package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billfold/billfold/internal/shared"
)

// Repository provides PostgreSQL backed persistence for settings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// All returns every setting of a company.
func (r *Repository) All(ctx context.Context, companyID int64) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT company_id, key, value, category
		FROM settings
		WHERE company_id = $1
		ORDER BY key`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.CompanyID, &s.Key, &s.Value, &s.Category); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns one setting value; shared.ErrNotFound when the key is unset.
func (r *Repository) Get(ctx context.Context, companyID int64, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		"SELECT value FROM settings WHERE company_id = $1 AND key = $2",
		companyID, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return value, err
}

// Set upserts a setting value.
func (r *Repository) Set(ctx context.Context, s Setting) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (company_id, key, value, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (company_id, key)
		DO UPDATE SET value = EXCLUDED.value, category = EXCLUDED.category, updated_at = NOW()`,
		s.CompanyID, s.Key, s.Value, s.Category)
	return err
}
