// Package guest exposes the unauthenticated document access path: clients
// follow an opaque URL key, optionally gated by an access password, and the
// read itself drives the sent-to-viewed transition.
package guest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/quotes"
	"github.com/billfold/billfold/internal/shared"
)

// InvoiceStore is the slice of the invoice repository the guest path needs.
type InvoiceStore interface {
	GetByURLKey(ctx context.Context, urlKey string) (*invoices.Invoice, error)
	UpdateStatus(ctx context.Context, id int64, status invoices.Status) error
}

// QuoteStore is the slice of the quotation repository the guest path needs.
type QuoteStore interface {
	GetByURLKey(ctx context.Context, urlKey string) (*quotes.Quotation, error)
	UpdateStatus(ctx context.Context, id int64, status quotes.Status) error
}

// Service owns guest document reads and guest quote decisions.
type Service struct {
	logger   *slog.Logger
	invoices InvoiceStore
	quotes   QuoteStore
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, invoiceStore InvoiceStore, quoteStore QuoteStore) *Service {
	return &Service{logger: logger, invoices: invoiceStore, quotes: quoteStore}
}

// checkPassword compares the supplied password with the stored one. The
// comparison is a plain equality check against the stored value, mirroring
// the behavior the API has always had.
func checkPassword(stored, supplied string) error {
	if stored != "" && supplied != stored {
		return fmt.Errorf("%w: wrong access password", shared.ErrValidation)
	}
	return nil
}

// Invoice returns the invoice behind the URL key. Reading a draft or sent
// invoice flips it to viewed; the transition is one-way.
func (s *Service) Invoice(ctx context.Context, urlKey, password string) (*invoices.Invoice, error) {
	inv, err := s.invoices.GetByURLKey(ctx, urlKey)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(inv.AccessPassword, password); err != nil {
		return nil, err
	}
	if inv.Status == invoices.StatusDraft || inv.Status == invoices.StatusSent {
		if err := s.invoices.UpdateStatus(ctx, inv.ID, invoices.StatusViewed); err != nil {
			return nil, err
		}
		inv.Status = invoices.StatusViewed
		s.logger.Info("invoice viewed by guest", slog.Int64("invoice_id", inv.ID))
	}
	return inv, nil
}

// Quote returns the quotation behind the URL key, flipping a draft or sent
// quote to viewed.
func (s *Service) Quote(ctx context.Context, urlKey, password string) (*quotes.Quotation, error) {
	q, err := s.quotes.GetByURLKey(ctx, urlKey)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(q.AccessPassword, password); err != nil {
		return nil, err
	}
	if q.Status == quotes.StatusDraft || q.Status == quotes.StatusSent {
		if err := s.quotes.UpdateStatus(ctx, q.ID, quotes.StatusViewed); err != nil {
			return nil, err
		}
		q.Status = quotes.StatusViewed
		s.logger.Info("quotation viewed by guest", slog.Int64("quote_id", q.ID))
	}
	return q, nil
}

func (s *Service) decideQuote(ctx context.Context, urlKey, password string, target quotes.Status) (*quotes.Quotation, error) {
	q, err := s.quotes.GetByURLKey(ctx, urlKey)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(q.AccessPassword, password); err != nil {
		return nil, err
	}
	if q.Converted {
		return nil, fmt.Errorf("%w: quotation %d is converted", shared.ErrConflict, q.ID)
	}
	if q.Status != quotes.StatusSent && q.Status != quotes.StatusViewed {
		return nil, fmt.Errorf("%w: quotation %d is %s", shared.ErrConflict, q.ID, q.Status)
	}
	if err := s.quotes.UpdateStatus(ctx, q.ID, target); err != nil {
		return nil, err
	}
	q.Status = target
	return q, nil
}

// ApproveQuote lets the guest approve a sent or viewed quotation.
func (s *Service) ApproveQuote(ctx context.Context, urlKey, password string) (*quotes.Quotation, error) {
	return s.decideQuote(ctx, urlKey, password, quotes.StatusApproved)
}

// RejectQuote lets the guest reject a sent or viewed quotation.
func (s *Service) RejectQuote(ctx context.Context, urlKey, password string) (*quotes.Quotation, error) {
	return s.decideQuote(ctx, urlKey, password, quotes.StatusRejected)
}
