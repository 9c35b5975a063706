package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billfold/billfold/internal/shared"
)

const clientColumns = "id, company_id, name, email, phone, address, country, is_active, created_at, updated_at"

// Repository provides PostgreSQL backed persistence for clients.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Country, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns a page of clients, optionally filtered by a name/email search
// term, together with the unpaged total.
func (r *Repository) List(ctx context.Context, companyID int64, search string, limit, offset int) ([]Client, int, error) {
	where := "WHERE company_id = $1"
	args := []any{companyID}
	if s := strings.TrimSpace(search); s != "" {
		args = append(args, "%"+s+"%")
		where += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM clients "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM clients %s ORDER BY name LIMIT $%d OFFSET $%d",
		clientColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Country, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Get retrieves one client within the company scope.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (*Client, error) {
	return scanClient(r.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM clients WHERE company_id = $1 AND id = $2", clientColumns),
		companyID, id))
}

// Create inserts a client.
func (r *Repository) Create(ctx context.Context, c Client) (*Client, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (company_id, name, email, phone, address, country, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		c.CompanyID, c.Name, c.Email, c.Phone, c.Address, c.Country, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Update rewrites a client.
func (r *Repository) Update(ctx context.Context, c Client) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clients
		SET name = $3, email = $4, phone = $5, address = $6, country = $7, is_active = $8, updated_at = NOW()
		WHERE company_id = $1 AND id = $2`,
		c.CompanyID, c.ID, c.Name, c.Email, c.Phone, c.Address, c.Country, c.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a client.
func (r *Repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM clients WHERE company_id = $1 AND id = $2", companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DocumentCount reports how many invoices and quotations reference the
// client. Used to guard deletion.
func (r *Repository) DocumentCount(ctx context.Context, companyID, clientID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM invoices WHERE company_id = $1 AND client_id = $2)
		     + (SELECT COUNT(*) FROM quotations WHERE company_id = $1 AND client_id = $2)`,
		companyID, clientID).Scan(&count)
	return count, err
}
