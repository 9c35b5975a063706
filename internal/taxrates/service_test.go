package taxrates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billfold/billfold/internal/shared"
)

type memoryTaxRepo struct {
	rates  map[int64]*TaxRate
	nextID int64
}

func newMemoryTaxRepo() *memoryTaxRepo {
	return &memoryTaxRepo{rates: make(map[int64]*TaxRate)}
}

func (r *memoryTaxRepo) List(ctx context.Context, companyID int64) ([]TaxRate, error) {
	var out []TaxRate
	for _, t := range r.rates {
		if t.CompanyID == companyID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memoryTaxRepo) Get(ctx context.Context, companyID, id int64) (*TaxRate, error) {
	t, ok := r.rates[id]
	if !ok || t.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memoryTaxRepo) Create(ctx context.Context, t TaxRate) (*TaxRate, error) {
	if t.IsDefault {
		for _, other := range r.rates {
			if other.CompanyID == t.CompanyID {
				other.IsDefault = false
			}
		}
	}
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.rates[t.ID] = &t
	return &t, nil
}

func (r *memoryTaxRepo) Update(ctx context.Context, t TaxRate) error {
	existing, ok := r.rates[t.ID]
	if !ok || existing.CompanyID != t.CompanyID {
		return shared.ErrNotFound
	}
	if t.IsDefault {
		for id, other := range r.rates {
			if other.CompanyID == t.CompanyID && id != t.ID {
				other.IsDefault = false
			}
		}
	}
	t.CreatedAt = existing.CreatedAt
	r.rates[t.ID] = &t
	return nil
}

func (r *memoryTaxRepo) Delete(ctx context.Context, companyID, id int64) error {
	t, ok := r.rates[id]
	if !ok || t.CompanyID != companyID {
		return shared.ErrNotFound
	}
	delete(r.rates, id)
	return nil
}

func TestCreateTaxRateValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryTaxRepo())

	_, err := svc.Create(ctx, TaxRate{CompanyID: 1, Name: "  ", Percent: 10})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, TaxRate{CompanyID: 1, Name: "VAT", Percent: 120})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateDefaultClearsOthers(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryTaxRepo()
	svc := NewService(repo)

	first, err := svc.Create(ctx, TaxRate{CompanyID: 1, Name: "VAT 19", Percent: 19, IsDefault: true, IsActive: true})
	require.NoError(t, err)

	_, err = svc.Create(ctx, TaxRate{CompanyID: 1, Name: "VAT 7", Percent: 7, IsDefault: true, IsActive: true})
	require.NoError(t, err)

	reloaded, err := svc.Get(ctx, 1, first.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsDefault)
}

func TestSnapshotPercent(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryTaxRepo()
	svc := NewService(repo)

	rate, err := svc.Create(ctx, TaxRate{CompanyID: 1, Name: "VAT 19", Percent: 19, IsActive: true})
	require.NoError(t, err)

	pct, err := svc.SnapshotPercent(ctx, 1, rate.ID)
	require.NoError(t, err)
	require.Equal(t, 19.0, pct)

	pct, err = svc.SnapshotPercent(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 0.0, pct)

	pct, err = svc.SnapshotPercent(ctx, 1, 999)
	require.NoError(t, err)
	require.Equal(t, 0.0, pct)
}
