package series

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billfold/billfold/internal/shared"
)

type memorySeriesRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*NumberSeries
}

func newMemorySeriesRepo() *memorySeriesRepo {
	return &memorySeriesRepo{items: make(map[int64]*NumberSeries)}
}

func (r *memorySeriesRepo) List(_ context.Context, companyID int64, docType DocumentType) ([]NumberSeries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []NumberSeries
	for _, s := range r.items {
		if s.CompanyID != companyID || !s.IsActive {
			continue
		}
		if docType != "" && !s.DocumentType.Accepts(docType) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memorySeriesRepo) Get(_ context.Context, companyID, id int64) (*NumberSeries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok || s.CompanyID != companyID {
		return nil, fmt.Errorf("%w: number series %d", shared.ErrNotFound, id)
	}
	clone := *s
	return &clone, nil
}

func (r *memorySeriesRepo) Create(_ context.Context, s NumberSeries) (*NumberSeries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.ID = r.nextID
	if s.IsDefault {
		r.clearDefaults(s.CompanyID, s.DocumentType, s.ID)
	}
	r.items[s.ID] = &s
	clone := s
	return &clone, nil
}

func (r *memorySeriesRepo) Update(_ context.Context, s NumberSeries) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[s.ID]
	if !ok || cur.CompanyID != s.CompanyID {
		return fmt.Errorf("%w: number series %d", shared.ErrNotFound, s.ID)
	}
	if s.IsDefault {
		r.clearDefaults(s.CompanyID, s.DocumentType, s.ID)
	}
	s.NextID = cur.NextID
	r.items[s.ID] = &s
	return nil
}

func (r *memorySeriesRepo) Delete(_ context.Context, companyID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok || s.CompanyID != companyID {
		return fmt.Errorf("%w: number series %d", shared.ErrNotFound, id)
	}
	delete(r.items, id)
	return nil
}

func (r *memorySeriesRepo) SetDefault(_ context.Context, companyID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok || s.CompanyID != companyID {
		return fmt.Errorf("%w: number series %d", shared.ErrNotFound, id)
	}
	r.clearDefaults(companyID, s.DocumentType, id)
	s.IsDefault = true
	return nil
}

func (r *memorySeriesRepo) clearDefaults(companyID int64, docType DocumentType, keepID int64) {
	for _, other := range r.items {
		if other.ID == keepID || other.CompanyID != companyID {
			continue
		}
		if other.DocumentType.Accepts(docType) || docType.Accepts(other.DocumentType) {
			other.IsDefault = false
		}
	}
}

func (r *memorySeriesRepo) Reserve(_ context.Context, seriesID int64) (int64, string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[seriesID]
	if !ok {
		return 0, "", 0, fmt.Errorf("%w: number series %d", shared.ErrNotFound, seriesID)
	}
	seq := s.NextID
	s.NextID++
	return seq, s.IdentifierFormat, s.LeftPad, nil
}

func (r *memorySeriesRepo) Resolve(_ context.Context, companyID int64, docType DocumentType, explicitID int64) (*NumberSeries, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if explicitID > 0 {
		if s, ok := r.items[explicitID]; ok && s.CompanyID == companyID && s.IsActive {
			clone := *s
			return &clone, nil
		}
	}
	var candidates []*NumberSeries
	for _, s := range r.items {
		if s.CompanyID == companyID && s.IsActive && s.DocumentType.Accepts(docType) {
			candidates = append(candidates, s)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].IsDefault != candidates[j].IsDefault {
			return candidates[i].IsDefault
		}
		return candidates[i].ID < candidates[j].ID
	})
	for _, s := range candidates {
		if s.IsDefault {
			clone := *s
			return &clone, nil
		}
	}
	if len(candidates) > 0 {
		clone := *candidates[0]
		return &clone, nil
	}
	for _, s := range r.items {
		if s.CompanyID == companyID && s.IsActive {
			clone := *s
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: no active series for %s", shared.ErrNoSeriesAvailable, docType)
}

func newTestSeriesService(repo RepositoryPort) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestServiceCreateValidation(t *testing.T) {
	svc := newTestSeriesService(newMemorySeriesRepo())

	_, err := svc.Create(context.Background(), NumberSeries{CompanyID: 1, IdentifierFormat: "INV-{{{id}}}"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), NumberSeries{CompanyID: 1, Name: "Default", DocumentType: "purchase", IdentifierFormat: "X"})
	require.ErrorIs(t, err, shared.ErrValidation)

	ns, err := svc.Create(context.Background(), NumberSeries{CompanyID: 1, Name: "Default", IdentifierFormat: "INV-{{{id}}}", IsActive: true})
	require.NoError(t, err)
	require.Equal(t, DocTypeBoth, ns.DocumentType)
	require.Equal(t, int64(1), ns.NextID)
}

func TestServiceAllocateAdvancesCounter(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := newTestSeriesService(repo)

	ns, err := svc.Create(context.Background(), NumberSeries{
		CompanyID: 1, Name: "Invoices", DocumentType: DocTypeInvoice,
		IdentifierFormat: "INV-{{{year}}}-{{{id}}}", NextID: 7, LeftPad: 4, IsActive: true,
	})
	require.NoError(t, err)

	number, err := svc.Allocate(context.Background(), ns.ID)
	require.NoError(t, err)
	require.Equal(t, "INV-2025-0007", number)

	number, err = svc.Allocate(context.Background(), ns.ID)
	require.NoError(t, err)
	require.Equal(t, "INV-2025-0008", number)

	preview, err := svc.Preview(context.Background(), 1, ns.ID)
	require.NoError(t, err)
	require.Equal(t, "INV-2025-0009", preview)
}

func TestServiceAllocateConcurrentUnique(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := newTestSeriesService(repo)

	ns, err := svc.Create(context.Background(), NumberSeries{
		CompanyID: 1, Name: "Invoices", DocumentType: DocTypeInvoice,
		IdentifierFormat: "INV-{{{id}}}", NextID: 1, LeftPad: 5, IsActive: true,
	})
	require.NoError(t, err)

	const workers = 32
	results := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := svc.Allocate(context.Background(), ns.ID)
			require.NoError(t, err)
			results <- number
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool, workers)
	for number := range results {
		require.False(t, seen[number], "duplicate identifier %s", number)
		seen[number] = true
	}
	require.Len(t, seen, workers)
}

func TestServiceResolveChain(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := newTestSeriesService(repo)
	ctx := context.Background()

	inactive, err := svc.Create(ctx, NumberSeries{CompanyID: 1, Name: "Retired", DocumentType: DocTypeInvoice, IdentifierFormat: "OLD-{{{id}}}"})
	require.NoError(t, err)
	plain, err := svc.Create(ctx, NumberSeries{CompanyID: 1, Name: "Plain", DocumentType: DocTypeInvoice, IdentifierFormat: "INV-{{{id}}}", IsActive: true})
	require.NoError(t, err)
	def, err := svc.Create(ctx, NumberSeries{CompanyID: 1, Name: "Main", DocumentType: DocTypeInvoice, IdentifierFormat: "M-{{{id}}}", IsDefault: true, IsActive: true})
	require.NoError(t, err)

	// Explicit id wins over the default.
	got, err := svc.ResolveFor(ctx, 1, DocTypeInvoice, plain.ID)
	require.NoError(t, err)
	require.Equal(t, plain.ID, got.ID)

	// Inactive explicit id falls through to the default.
	got, err = svc.ResolveFor(ctx, 1, DocTypeInvoice, inactive.ID)
	require.NoError(t, err)
	require.Equal(t, def.ID, got.ID)

	got, err = svc.ResolveFor(ctx, 1, DocTypeInvoice, 0)
	require.NoError(t, err)
	require.Equal(t, def.ID, got.ID)

	// Without a default, the lowest-id active accepting series is picked.
	require.NoError(t, svc.Update(ctx, NumberSeries{ID: def.ID, CompanyID: 1, Name: "Main", DocumentType: DocTypeInvoice, IdentifierFormat: "M-{{{id}}}", IsActive: true}))
	got, err = svc.ResolveFor(ctx, 1, DocTypeInvoice, 0)
	require.NoError(t, err)
	require.Equal(t, plain.ID, got.ID)

	_, err = svc.ResolveFor(ctx, 2, DocTypeInvoice, 0)
	require.True(t, errors.Is(err, shared.ErrNoSeriesAvailable))
}

func TestServiceSetDefaultClearsSiblings(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := newTestSeriesService(repo)
	ctx := context.Background()

	a, err := svc.Create(ctx, NumberSeries{CompanyID: 1, Name: "A", DocumentType: DocTypeInvoice, IdentifierFormat: "A-{{{id}}}", IsDefault: true, IsActive: true})
	require.NoError(t, err)
	b, err := svc.Create(ctx, NumberSeries{CompanyID: 1, Name: "B", DocumentType: DocTypeInvoice, IdentifierFormat: "B-{{{id}}}", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.SetDefault(ctx, 1, b.ID))

	got, err := svc.Get(ctx, 1, a.ID)
	require.NoError(t, err)
	require.False(t, got.IsDefault)

	got, err = svc.Get(ctx, 1, b.ID)
	require.NoError(t, err)
	require.True(t, got.IsDefault)
}

func TestServiceUpdatePreservesCounter(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := newTestSeriesService(repo)
	ctx := context.Background()

	ns, err := svc.Create(ctx, NumberSeries{CompanyID: 1, Name: "Invoices", DocumentType: DocTypeInvoice, IdentifierFormat: "INV-{{{id}}}", NextID: 50, IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, NumberSeries{ID: ns.ID, CompanyID: 1, Name: "Renamed", DocumentType: DocTypeInvoice, IdentifierFormat: "R-{{{id}}}", NextID: 1, IsActive: true}))

	got, err := svc.Get(ctx, 1, ns.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)
	require.Equal(t, int64(50), got.NextID)
}
