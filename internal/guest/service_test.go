package guest

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/quotes"
	"github.com/billfold/billfold/internal/shared"
)

type fakeInvoiceStore struct {
	items map[string]*invoices.Invoice
}

func (s *fakeInvoiceStore) GetByURLKey(_ context.Context, urlKey string) (*invoices.Invoice, error) {
	inv, ok := s.items[urlKey]
	if !ok {
		return nil, fmt.Errorf("%w: url key", shared.ErrNotFound)
	}
	clone := *inv
	return &clone, nil
}

func (s *fakeInvoiceStore) UpdateStatus(_ context.Context, id int64, status invoices.Status) error {
	for _, inv := range s.items {
		if inv.ID == id {
			inv.Status = status
			return nil
		}
	}
	return shared.ErrNotFound
}

type fakeQuoteStore struct {
	items map[string]*quotes.Quotation
}

func (s *fakeQuoteStore) GetByURLKey(_ context.Context, urlKey string) (*quotes.Quotation, error) {
	q, ok := s.items[urlKey]
	if !ok {
		return nil, fmt.Errorf("%w: url key", shared.ErrNotFound)
	}
	clone := *q
	clone.Converted = clone.InvoiceID != nil
	return &clone, nil
}

func (s *fakeQuoteStore) UpdateStatus(_ context.Context, id int64, status quotes.Status) error {
	for _, q := range s.items {
		if q.ID == id {
			q.Status = status
			return nil
		}
	}
	return shared.ErrNotFound
}

func newGuestService(invStore *fakeInvoiceStore, quoteStore *fakeQuoteStore) *Service {
	return NewService(slog.Default(), invStore, quoteStore)
}

func TestInvoiceViewTransitionOneWay(t *testing.T) {
	store := &fakeInvoiceStore{items: map[string]*invoices.Invoice{
		"abc": {ID: 1, Status: invoices.StatusSent},
	}}
	svc := newGuestService(store, &fakeQuoteStore{})

	inv, err := svc.Invoice(context.Background(), "abc", "")
	require.NoError(t, err)
	require.Equal(t, invoices.StatusViewed, inv.Status)

	// A second read stays viewed; a paid invoice is never touched.
	inv, err = svc.Invoice(context.Background(), "abc", "")
	require.NoError(t, err)
	require.Equal(t, invoices.StatusViewed, inv.Status)

	store.items["abc"].Status = invoices.StatusPaid
	inv, err = svc.Invoice(context.Background(), "abc", "")
	require.NoError(t, err)
	require.Equal(t, invoices.StatusPaid, inv.Status)
}

func TestInvoicePasswordGate(t *testing.T) {
	store := &fakeInvoiceStore{items: map[string]*invoices.Invoice{
		"abc": {ID: 1, Status: invoices.StatusSent, AccessPassword: "opensesame"},
	}}
	svc := newGuestService(store, &fakeQuoteStore{})

	_, err := svc.Invoice(context.Background(), "abc", "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Invoice(context.Background(), "abc", "wrong")
	require.ErrorIs(t, err, shared.ErrValidation)

	// Wrong password must not trip the viewed transition.
	require.Equal(t, invoices.StatusSent, store.items["abc"].Status)

	inv, err := svc.Invoice(context.Background(), "abc", "opensesame")
	require.NoError(t, err)
	require.Equal(t, invoices.StatusViewed, inv.Status)
}

func TestInvoiceUnknownKey(t *testing.T) {
	svc := newGuestService(&fakeInvoiceStore{items: map[string]*invoices.Invoice{}}, &fakeQuoteStore{})

	_, err := svc.Invoice(context.Background(), "missing", "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGuestQuoteDecision(t *testing.T) {
	store := &fakeQuoteStore{items: map[string]*quotes.Quotation{
		"qk": {ID: 5, Status: quotes.StatusSent},
	}}
	svc := newGuestService(&fakeInvoiceStore{}, store)

	q, err := svc.Quote(context.Background(), "qk", "")
	require.NoError(t, err)
	require.Equal(t, quotes.StatusViewed, q.Status)

	q, err = svc.ApproveQuote(context.Background(), "qk", "")
	require.NoError(t, err)
	require.Equal(t, quotes.StatusApproved, q.Status)

	_, err = svc.RejectQuote(context.Background(), "qk", "")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestGuestQuoteConvertedConflict(t *testing.T) {
	invoiceID := int64(3)
	store := &fakeQuoteStore{items: map[string]*quotes.Quotation{
		"qk": {ID: 5, Status: quotes.StatusViewed, InvoiceID: &invoiceID},
	}}
	svc := newGuestService(&fakeInvoiceStore{}, store)

	_, err := svc.ApproveQuote(context.Background(), "qk", "")
	require.ErrorIs(t, err, shared.ErrConflict)
}
