package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/series"
	"github.com/billfold/billfold/internal/settings"
	"github.com/billfold/billfold/internal/shared"
)

type memoryQuoteRepo struct {
	nextID        int64
	nextInvoiceID int64
	items         map[int64]*Quotation
	invoices      map[int64]*invoices.Invoice
}

func newMemoryQuoteRepo() *memoryQuoteRepo {
	return &memoryQuoteRepo{
		items:    make(map[int64]*Quotation),
		invoices: make(map[int64]*invoices.Invoice),
	}
}

func cloneQuote(q *Quotation) *Quotation {
	clone := *q
	clone.Items = append([]QuoteItem(nil), q.Items...)
	clone.Taxes = append([]QuoteTax(nil), q.Taxes...)
	clone.Converted = clone.InvoiceID != nil
	return &clone
}

func (r *memoryQuoteRepo) Get(_ context.Context, companyID, id int64) (*Quotation, error) {
	q, ok := r.items[id]
	if !ok || q.CompanyID != companyID {
		return nil, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return cloneQuote(q), nil
}

func (r *memoryQuoteRepo) GetByURLKey(_ context.Context, urlKey string) (*Quotation, error) {
	for _, q := range r.items {
		if q.URLKey == urlKey {
			return cloneQuote(q), nil
		}
	}
	return nil, fmt.Errorf("%w: url key", shared.ErrNotFound)
}

func (r *memoryQuoteRepo) List(_ context.Context, req ListQuotesRequest) ([]Quotation, int, error) {
	var out []Quotation
	for _, q := range r.items {
		if q.CompanyID != req.CompanyID {
			continue
		}
		if req.Status != "" && q.Status != req.Status {
			continue
		}
		if req.Converted != nil && (q.InvoiceID != nil) != *req.Converted {
			continue
		}
		out = append(out, *cloneQuote(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *memoryQuoteRepo) Create(_ context.Context, q *Quotation) (int64, error) {
	r.nextID++
	q.ID = r.nextID
	r.items[q.ID] = cloneQuote(q)
	return q.ID, nil
}

func (r *memoryQuoteRepo) Update(_ context.Context, q *Quotation) error {
	cur, ok := r.items[q.ID]
	if !ok || cur.CompanyID != q.CompanyID {
		return fmt.Errorf("%w: quotation %d", shared.ErrNotFound, q.ID)
	}
	q.InvoiceID = cur.InvoiceID
	q.Status = cur.Status
	r.items[q.ID] = cloneQuote(q)
	return nil
}

func (r *memoryQuoteRepo) Delete(_ context.Context, companyID, id int64) error {
	q, ok := r.items[id]
	if !ok || q.CompanyID != companyID {
		return fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	delete(r.items, id)
	return nil
}

func (r *memoryQuoteRepo) SetNumber(_ context.Context, id int64, number string, seriesID int64) error {
	q, ok := r.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.Number = &number
	q.SeriesID = &seriesID
	return nil
}

func (r *memoryQuoteRepo) UpdateStatus(_ context.Context, id int64, status Status) error {
	q, ok := r.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.Status = status
	return nil
}

func (r *memoryQuoteRepo) ConvertToInvoice(_ context.Context, quoteID int64, inv *invoices.Invoice) (int64, error) {
	q, ok := r.items[quoteID]
	if !ok {
		return 0, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, quoteID)
	}
	if q.InvoiceID != nil {
		return 0, fmt.Errorf("%w: quotation %d already converted", shared.ErrConflict, quoteID)
	}
	r.nextInvoiceID++
	id := r.nextInvoiceID
	clone := *inv
	clone.ID = id
	r.invoices[id] = &clone
	q.InvoiceID = &id
	q.Status = StatusApproved
	return id, nil
}

type stubSeries struct {
	next int64
	fail bool
}

func (s *stubSeries) AllocateFor(_ context.Context, _ int64, docType series.DocumentType, _ int64) (string, *series.NumberSeries, error) {
	if s.fail {
		return "", nil, shared.ErrNoSeriesAvailable
	}
	s.next++
	prefix := "Q"
	if docType == series.DocTypeInvoice {
		prefix = "INV"
	}
	return fmt.Sprintf("%s-%04d", prefix, s.next), &series.NumberSeries{ID: 1, DocumentType: docType}, nil
}

func (s *stubSeries) ResolveFor(_ context.Context, _ int64, docType series.DocumentType, _ int64) (*series.NumberSeries, error) {
	if s.fail {
		return nil, shared.ErrNoSeriesAvailable
	}
	return &series.NumberSeries{ID: 2, DocumentType: docType}, nil
}

func (s *stubSeries) Allocate(_ context.Context, _ int64) (string, error) {
	if s.fail {
		return "", shared.ErrNoSeriesAvailable
	}
	s.next++
	return fmt.Sprintf("INV-%04d", s.next), nil
}

type stubTaxes map[int64]float64

func (t stubTaxes) SnapshotPercent(_ context.Context, _, taxRateID int64) (float64, error) {
	return t[taxRateID], nil
}

type stubPolicies struct {
	policy settings.BillingPolicy
}

func (p *stubPolicies) Policy(_ context.Context, _ int64) (settings.BillingPolicy, error) {
	return p.policy, nil
}

type fixture struct {
	repo     *memoryQuoteRepo
	series   *stubSeries
	policies *stubPolicies
	service  *Service
}

func newFixture() *fixture {
	repo := newMemoryQuoteRepo()
	seriesPort := &stubSeries{}
	policies := &stubPolicies{policy: settings.DefaultPolicy()}
	svc := NewService(slog.Default(), repo, seriesPort, stubTaxes{1: 10}, policies)
	svc.now = func() time.Time { return time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC) }
	return &fixture{repo: repo, series: seriesPort, policies: policies, service: svc}
}

var testActor = shared.Actor{UserID: 9, CompanyID: 1}

func basicCreateRequest() CreateQuoteRequest {
	return CreateQuoteRequest{
		ClientID: 3,
		Items: []QuoteItemRequest{
			{Name: "Design work", Quantity: 5, Price: 100, TaxRateID: 1},
		},
	}
}

func TestCreateComputesAmountsAndExpiry(t *testing.T) {
	f := newFixture()

	q, err := f.service.Create(context.Background(), testActor, basicCreateRequest())
	require.NoError(t, err)

	require.Equal(t, StatusDraft, q.Status)
	require.InDelta(t, 500.0, q.Subtotal, 0.001)
	require.InDelta(t, 50.0, q.ItemTaxTotal, 0.001)
	require.InDelta(t, 550.0, q.Total, 0.001)
	require.Equal(t, q.Date.AddDate(0, 0, 15), q.ExpiryDate)
	require.False(t, q.Converted)
	require.NotNil(t, q.Number)
}

func TestUpdateConvertedConflict(t *testing.T) {
	f := newFixture()

	q, err := f.service.Create(context.Background(), testActor, basicCreateRequest())
	require.NoError(t, err)

	invoiceID := int64(77)
	f.repo.items[q.ID].InvoiceID = &invoiceID

	_, err = f.service.Update(context.Background(), testActor, q.ID, UpdateQuoteRequest{
		ClientID: 3,
		Items:    []QuoteItemRequest{{Name: "Design work", Quantity: 1, Price: 100}},
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	err = f.service.Delete(context.Background(), testActor, q.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestApproveRejectTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	q, err := f.service.Create(ctx, testActor, basicCreateRequest())
	require.NoError(t, err)

	// Draft quotes cannot be decided.
	_, err = f.service.Approve(ctx, testActor, q.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.service.MarkSent(ctx, testActor, q.ID)
	require.NoError(t, err)

	decided, err := f.service.Approve(ctx, testActor, q.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, decided.Status)

	_, err = f.service.Reject(ctx, testActor, q.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCopyRoundTripTotal(t *testing.T) {
	f := newFixture()

	req := basicCreateRequest()
	req.DiscountPercent = 10
	src, err := f.service.Create(context.Background(), testActor, req)
	require.NoError(t, err)

	dup, err := f.service.Copy(context.Background(), testActor, src.ID)
	require.NoError(t, err)

	require.NotEqual(t, src.ID, dup.ID)
	require.NotEqual(t, src.URLKey, dup.URLKey)
	require.Equal(t, StatusDraft, dup.Status)
	require.InDelta(t, src.Total, dup.Total, 0.001)
}

func TestConvertToInvoice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	q, err := f.service.Create(ctx, testActor, basicCreateRequest())
	require.NoError(t, err)

	inv, err := f.service.ConvertToInvoice(ctx, testActor, q.ID, ConvertQuoteRequest{})
	require.NoError(t, err)

	require.Equal(t, invoices.StatusDraft, inv.Status)
	require.InDelta(t, 550.0, inv.Total, 0.001)
	require.InDelta(t, 0.0, inv.Paid, 0.001)
	require.InDelta(t, 550.0, inv.Balance, 0.001)
	require.NotNil(t, inv.QuoteID)
	require.Equal(t, q.ID, *inv.QuoteID)

	converted, err := f.service.Get(ctx, 1, q.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, converted.Status)
	require.True(t, converted.Converted)
	require.NotNil(t, converted.InvoiceID)
	require.Equal(t, inv.ID, *converted.InvoiceID)

	_, err = f.service.ConvertToInvoice(ctx, testActor, q.ID, ConvertQuoteRequest{})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestConvertNoSeriesAvailable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	q, err := f.service.Create(ctx, testActor, basicCreateRequest())
	require.NoError(t, err)

	f.series.fail = true
	_, err = f.service.ConvertToInvoice(ctx, testActor, q.ID, ConvertQuoteRequest{})
	require.ErrorIs(t, err, shared.ErrNoSeriesAvailable)

	// Nothing persisted: the quote is still unconverted.
	cur, err := f.service.Get(ctx, 1, q.ID)
	require.NoError(t, err)
	require.False(t, cur.Converted)
	require.Empty(t, f.repo.invoices)
}

func TestDeletePolicyGate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	q, err := f.service.Create(ctx, testActor, basicCreateRequest())
	require.NoError(t, err)

	err = f.service.Delete(ctx, testActor, q.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	f.policies.policy.EnableQuoteDeletion = true
	require.NoError(t, f.service.Delete(ctx, testActor, q.ID))
}
