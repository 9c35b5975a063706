package payments

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/shared"
)

type ledgerInvoice struct {
	InvoiceFinancials
	Paid    float64
	Balance float64
}

type memoryPaymentRepo struct {
	mu       sync.Mutex
	nextID   int64
	payments map[int64]*Payment
	invoices map[int64]*ledgerInvoice
	methods  map[int64]*PaymentMethod
}

func newMemoryPaymentRepo() *memoryPaymentRepo {
	return &memoryPaymentRepo{
		payments: make(map[int64]*Payment),
		invoices: make(map[int64]*ledgerInvoice),
		methods:  make(map[int64]*PaymentMethod),
	}
}

func (r *memoryPaymentRepo) addInvoice(id int64, total float64, status invoices.Status) {
	r.invoices[id] = &ledgerInvoice{
		InvoiceFinancials: InvoiceFinancials{ID: id, Total: total, Status: status},
		Balance:           total,
	}
}

func (r *memoryPaymentRepo) Get(_ context.Context, companyID, id int64) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.CompanyID != companyID {
		return nil, fmt.Errorf("%w: payment %d", shared.ErrNotFound, id)
	}
	clone := *p
	return &clone, nil
}

func (r *memoryPaymentRepo) ListByInvoice(_ context.Context, companyID, invoiceID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if p.CompanyID == companyID && p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryPaymentRepo) Create(_ context.Context, p Payment) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	r.payments[p.ID] = &p
	clone := p
	return &clone, nil
}

func (r *memoryPaymentRepo) Update(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.payments[p.ID]
	if !ok || cur.CompanyID != p.CompanyID {
		return fmt.Errorf("%w: payment %d", shared.ErrNotFound, p.ID)
	}
	r.payments[p.ID] = &p
	return nil
}

func (r *memoryPaymentRepo) Delete(_ context.Context, companyID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.CompanyID != companyID {
		return fmt.Errorf("%w: payment %d", shared.ErrNotFound, id)
	}
	delete(r.payments, id)
	return nil
}

func (r *memoryPaymentRepo) Reconcile(_ context.Context, invoiceID int64, fn ReconcileFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("%w: invoice %d", shared.ErrNotFound, invoiceID)
	}
	var sum float64
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			sum += p.Amount
		}
	}
	paid, balance, status := fn(inv.InvoiceFinancials, sum)
	inv.Paid = paid
	inv.Balance = balance
	inv.Status = status
	return nil
}

func (r *memoryPaymentRepo) ListMethods(_ context.Context, companyID int64) ([]PaymentMethod, error) {
	var out []PaymentMethod
	for _, m := range r.methods {
		if m.CompanyID == companyID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryPaymentRepo) GetMethod(_ context.Context, companyID, id int64) (*PaymentMethod, error) {
	m, ok := r.methods[id]
	if !ok || m.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	clone := *m
	return &clone, nil
}

func (r *memoryPaymentRepo) CreateMethod(_ context.Context, m PaymentMethod) (*PaymentMethod, error) {
	r.nextID++
	m.ID = r.nextID
	if m.IsDefault {
		for _, other := range r.methods {
			if other.CompanyID == m.CompanyID {
				other.IsDefault = false
			}
		}
	}
	r.methods[m.ID] = &m
	clone := m
	return &clone, nil
}

func (r *memoryPaymentRepo) UpdateMethod(_ context.Context, m PaymentMethod) error {
	cur, ok := r.methods[m.ID]
	if !ok || cur.CompanyID != m.CompanyID {
		return shared.ErrNotFound
	}
	r.methods[m.ID] = &m
	return nil
}

func (r *memoryPaymentRepo) DeleteMethod(_ context.Context, companyID, id int64) error {
	m, ok := r.methods[id]
	if !ok || m.CompanyID != companyID {
		return shared.ErrNotFound
	}
	delete(r.methods, id)
	return nil
}

var testActor = shared.Actor{UserID: 9, CompanyID: 1}

func newTestService(repo Repository) *Service {
	svc := NewService(slog.Default(), repo)
	svc.now = func() time.Time { return time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestLedgerScenario(t *testing.T) {
	repo := newMemoryPaymentRepo()
	repo.addInvoice(1, 1000, invoices.StatusSent)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Record(ctx, testActor, CreatePaymentRequest{InvoiceID: 1, Amount: 400})
	require.NoError(t, err)

	inv := repo.invoices[1]
	require.InDelta(t, 400.0, inv.Paid, 0.001)
	require.InDelta(t, 600.0, inv.Balance, 0.001)
	require.Equal(t, invoices.StatusSent, inv.Status)

	second, err := svc.Record(ctx, testActor, CreatePaymentRequest{InvoiceID: 1, Amount: 600})
	require.NoError(t, err)
	require.InDelta(t, 1000.0, inv.Paid, 0.001)
	require.InDelta(t, 0.0, inv.Balance, 0.001)
	require.Equal(t, invoices.StatusPaid, inv.Status)

	// Removing the closing payment reverts to sent, never viewed.
	require.NoError(t, svc.Delete(ctx, testActor, second.ID))
	require.InDelta(t, 400.0, inv.Paid, 0.001)
	require.InDelta(t, 600.0, inv.Balance, 0.001)
	require.Equal(t, invoices.StatusSent, inv.Status)
}

func TestPaidRevertsToSentNotViewed(t *testing.T) {
	repo := newMemoryPaymentRepo()
	repo.addInvoice(1, 500, invoices.StatusViewed)
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Record(ctx, testActor, CreatePaymentRequest{InvoiceID: 1, Amount: 500})
	require.NoError(t, err)
	require.Equal(t, invoices.StatusPaid, repo.invoices[1].Status)

	_, err = svc.Update(ctx, testActor, p.ID, UpdatePaymentRequest{Amount: 100})
	require.NoError(t, err)
	require.Equal(t, invoices.StatusSent, repo.invoices[1].Status)
	require.InDelta(t, 400.0, repo.invoices[1].Balance, 0.001)
}

func TestDraftInvoiceNeverAutoPays(t *testing.T) {
	repo := newMemoryPaymentRepo()
	repo.addInvoice(1, 300, invoices.StatusDraft)
	svc := newTestService(repo)

	_, err := svc.Record(context.Background(), testActor, CreatePaymentRequest{InvoiceID: 1, Amount: 300})
	require.NoError(t, err)
	require.Equal(t, invoices.StatusDraft, repo.invoices[1].Status)
	require.InDelta(t, 0.0, repo.invoices[1].Balance, 0.001)
}

func TestRecordValidation(t *testing.T) {
	svc := newTestService(newMemoryPaymentRepo())

	_, err := svc.Record(context.Background(), testActor, CreatePaymentRequest{InvoiceID: 1, Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Record(context.Background(), testActor, CreatePaymentRequest{InvoiceID: 1, Amount: -50})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApplyMissingInvoiceIsSwallowed(t *testing.T) {
	repo := newMemoryPaymentRepo()
	svc := newTestService(repo)

	// The payment row is kept even though the invoice cascade has nothing to
	// update.
	p, err := svc.Record(context.Background(), testActor, CreatePaymentRequest{InvoiceID: 42, Amount: 100})
	require.NoError(t, err)
	require.NotZero(t, p.ID)
}

func TestReconcileIdempotent(t *testing.T) {
	repo := newMemoryPaymentRepo()
	repo.addInvoice(1, 1000, invoices.StatusSent)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Record(ctx, testActor, CreatePaymentRequest{InvoiceID: 1, Amount: 400})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Apply(ctx, 1))
	}
	require.InDelta(t, 400.0, repo.invoices[1].Paid, 0.001)
	require.InDelta(t, 600.0, repo.invoices[1].Balance, 0.001)
}

func TestConcurrentPaymentsConsistentBalance(t *testing.T) {
	repo := newMemoryPaymentRepo()
	repo.addInvoice(1, 1000, invoices.StatusSent)
	svc := newTestService(repo)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Record(context.Background(), testActor, CreatePaymentRequest{InvoiceID: 1, Amount: 50})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, svc.Apply(context.Background(), 1))
	require.InDelta(t, 500.0, repo.invoices[1].Paid, 0.001)
	require.InDelta(t, 500.0, repo.invoices[1].Balance, 0.001)
}

func TestMethodCRUD(t *testing.T) {
	repo := newMemoryPaymentRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateMethod(ctx, 1, PaymentMethodRequest{Name: " "})
	require.ErrorIs(t, err, shared.ErrValidation)

	m, err := svc.CreateMethod(ctx, 1, PaymentMethodRequest{Name: "Bank transfer", IsDefault: true, IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateMethod(ctx, 1, m.ID, PaymentMethodRequest{Name: "Wire", IsActive: true}))

	out, err := svc.ListMethods(ctx, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "Wire", out[0].Name)

	require.NoError(t, svc.DeleteMethod(ctx, 1, m.ID))
}
