package series

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/billfold/billfold/internal/shared"
)

// RepositoryPort defines data access methods for number series.
type RepositoryPort interface {
	List(ctx context.Context, companyID int64, docType DocumentType) ([]NumberSeries, error)
	Get(ctx context.Context, companyID, id int64) (*NumberSeries, error)
	Create(ctx context.Context, s NumberSeries) (*NumberSeries, error)
	Update(ctx context.Context, s NumberSeries) error
	Delete(ctx context.Context, companyID, id int64) error
	SetDefault(ctx context.Context, companyID, id int64) error
	Reserve(ctx context.Context, seriesID int64) (seq int64, format string, leftPad int, err error)
	Resolve(ctx context.Context, companyID int64, docType DocumentType, explicitID int64) (*NumberSeries, error)
}

// Service owns number series administration and allocation.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) validate(ns NumberSeries) error {
	if strings.TrimSpace(ns.Name) == "" {
		return fmt.Errorf("%w: series name is required", shared.ErrValidation)
	}
	if !ns.DocumentType.Valid() {
		return fmt.Errorf("%w: invalid document type %q", shared.ErrValidation, ns.DocumentType)
	}
	if strings.TrimSpace(ns.IdentifierFormat) == "" {
		return fmt.Errorf("%w: identifier format is required", shared.ErrValidation)
	}
	if ns.LeftPad < 0 || ns.LeftPad > 10 {
		return fmt.Errorf("%w: left pad must be between 0 and 10", shared.ErrValidation)
	}
	return nil
}

// List returns active series, optionally narrowed by document type.
func (s *Service) List(ctx context.Context, companyID int64, docType DocumentType) ([]NumberSeries, error) {
	return s.repo.List(ctx, companyID, docType)
}

// Get returns one series.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*NumberSeries, error) {
	return s.repo.Get(ctx, companyID, id)
}

// Create validates and stores a series.
func (s *Service) Create(ctx context.Context, ns NumberSeries) (*NumberSeries, error) {
	if ns.NextID < 1 {
		ns.NextID = 1
	}
	if ns.DocumentType == "" {
		ns.DocumentType = DocTypeBoth
	}
	if err := s.validate(ns); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, ns)
}

// Update validates and rewrites a series. The counter itself is only ever
// advanced by Allocate.
func (s *Service) Update(ctx context.Context, ns NumberSeries) error {
	if ns.ID <= 0 {
		return fmt.Errorf("%w: invalid series id", shared.ErrValidation)
	}
	if err := s.validate(ns); err != nil {
		return err
	}
	return s.repo.Update(ctx, ns)
}

// Delete removes a series.
func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	return s.repo.Delete(ctx, companyID, id)
}

// SetDefault makes one series the default for its (company, document type),
// atomically clearing the flag on every sibling.
func (s *Service) SetDefault(ctx context.Context, companyID, id int64) error {
	return s.repo.SetDefault(ctx, companyID, id)
}

// Preview formats the identifier the series would issue next, without
// advancing anything.
func (s *Service) Preview(ctx context.Context, companyID, id int64) (string, error) {
	ns, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return "", err
	}
	return GenerateNumber(*ns, s.now()), nil
}

// Allocate reserves the next sequence value of the series and returns the
// formatted identifier. Reservation and counter advance are one atomic write;
// a later failure of the caller leaves a gap in the series, never a reuse.
func (s *Service) Allocate(ctx context.Context, seriesID int64) (string, error) {
	seq, format, leftPad, err := s.repo.Reserve(ctx, seriesID)
	if err != nil {
		return "", err
	}
	return FormatNumber(format, seq, leftPad, s.now()), nil
}

// AllocateFor resolves a series through the selection chain and allocates
// from it. explicitID may be zero.
func (s *Service) AllocateFor(ctx context.Context, companyID int64, docType DocumentType, explicitID int64) (string, *NumberSeries, error) {
	ns, err := s.repo.Resolve(ctx, companyID, docType, explicitID)
	if err != nil {
		return "", nil, err
	}
	number, err := s.Allocate(ctx, ns.ID)
	if err != nil {
		return "", nil, err
	}
	return number, ns, nil
}

// ResolveFor runs the selection chain without allocating.
func (s *Service) ResolveFor(ctx context.Context, companyID int64, docType DocumentType, explicitID int64) (*NumberSeries, error) {
	return s.repo.Resolve(ctx, companyID, docType, explicitID)
}
