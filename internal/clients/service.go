package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/billfold/billfold/internal/shared"
)

// RepositoryPort defines data access methods for clients.
type RepositoryPort interface {
	List(ctx context.Context, companyID int64, search string, limit, offset int) ([]Client, int, error)
	Get(ctx context.Context, companyID, id int64) (*Client, error)
	Create(ctx context.Context, c Client) (*Client, error)
	Update(ctx context.Context, c Client) error
	Delete(ctx context.Context, companyID, id int64) error
	DocumentCount(ctx context.Context, companyID, clientID int64) (int, error)
}

// Service owns client administration.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validate(c Client) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: client name is required", shared.ErrValidation)
	}
	return nil
}

// ListResult is a page of clients with pagination metadata.
type ListResult struct {
	Items      []Client          `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns a client page matching the search term.
func (s *Service) List(ctx context.Context, companyID int64, search string, page, perPage int) (*ListResult, error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.List(ctx, companyID, search, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// Get returns one client.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Client, error) {
	return s.repo.Get(ctx, companyID, id)
}

// Create validates and stores a client.
func (s *Service) Create(ctx context.Context, c Client) (*Client, error) {
	if err := validate(c); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, c)
}

// Update validates and rewrites a client.
func (s *Service) Update(ctx context.Context, c Client) error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: invalid client id", shared.ErrValidation)
	}
	if err := validate(c); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

// Delete removes a client unless documents still reference it.
func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	count, err := s.repo.DocumentCount(ctx, companyID, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: client has %d documents", shared.ErrConflict, count)
	}
	return s.repo.Delete(ctx, companyID, id)
}
