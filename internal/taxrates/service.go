package taxrates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/billfold/billfold/internal/shared"
)

// RepositoryPort defines data access methods for tax rates.
type RepositoryPort interface {
	List(ctx context.Context, companyID int64) ([]TaxRate, error)
	Get(ctx context.Context, companyID, id int64) (*TaxRate, error)
	Create(ctx context.Context, t TaxRate) (*TaxRate, error)
	Update(ctx context.Context, t TaxRate) error
	Delete(ctx context.Context, companyID, id int64) error
}

// Service handles tax rate business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) validate(t TaxRate) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tax rate name is required", shared.ErrValidation)
	}
	if t.Percent < 0 || t.Percent > 100 {
		return fmt.Errorf("%w: tax rate percent must be between 0 and 100", shared.ErrValidation)
	}
	return nil
}

// List returns the company's tax rates.
func (s *Service) List(ctx context.Context, companyID int64) ([]TaxRate, error) {
	return s.repo.List(ctx, companyID)
}

// Get returns one tax rate.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*TaxRate, error) {
	return s.repo.Get(ctx, companyID, id)
}

// Create validates and stores a tax rate.
func (s *Service) Create(ctx context.Context, t TaxRate) (*TaxRate, error) {
	if err := s.validate(t); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, t)
}

// Update validates and rewrites a tax rate.
func (s *Service) Update(ctx context.Context, t TaxRate) error {
	if t.ID <= 0 {
		return fmt.Errorf("%w: invalid tax rate id", shared.ErrValidation)
	}
	if err := s.validate(t); err != nil {
		return err
	}
	return s.repo.Update(ctx, t)
}

// Delete removes a tax rate. Saved documents are unaffected because items
// carry their own percent snapshot.
func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	return s.repo.Delete(ctx, companyID, id)
}

// SnapshotPercent resolves the percent to copy onto a line item at save time.
// A zero id or an unknown rate snapshots as 0, matching a removed rate.
func (s *Service) SnapshotPercent(ctx context.Context, companyID, taxRateID int64) (float64, error) {
	if taxRateID == 0 {
		return 0, nil
	}
	rate, err := s.repo.Get(ctx, companyID, taxRateID)
	if errors.Is(err, shared.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rate.Percent, nil
}
