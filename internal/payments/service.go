package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/money"
	"github.com/billfold/billfold/internal/shared"
)

type CreatePaymentRequest struct {
	InvoiceID int64      `json:"invoice_id" validate:"required,gt=0"`
	MethodID  int64      `json:"method_id" validate:"gte=0"`
	Amount    float64    `json:"amount" validate:"required,gt=0"`
	Date      *time.Time `json:"date,omitempty"`
	Note      string     `json:"note"`
}

type UpdatePaymentRequest struct {
	MethodID int64      `json:"method_id" validate:"gte=0"`
	Amount   float64    `json:"amount" validate:"required,gt=0"`
	Date     *time.Time `json:"date,omitempty"`
	Note     string     `json:"note"`
}

type PaymentMethodRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
	IsActive    bool   `json:"is_active"`
}

// Service owns the payment ledger. Every payment mutation is followed by a
// full recomputation of the referenced invoice's paid, balance, and status;
// the recomputation is idempotent and never patched incrementally.
type Service struct {
	logger *slog.Logger
	repo   Repository
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo Repository) *Service {
	return &Service{logger: logger, repo: repo, now: time.Now}
}

// reconcile recomputes the invoice from the full payment sum. Paid lands when
// the balance closes on a non-draft invoice; removing payments from a paid
// invoice reverts it to sent.
func reconcile(inv InvoiceFinancials, paidSum float64) (float64, float64, invoices.Status) {
	balance := inv.Total - paidSum
	status := inv.Status
	if balance <= 0 && status != invoices.StatusDraft {
		status = invoices.StatusPaid
	} else if balance > 0 && status == invoices.StatusPaid {
		status = invoices.StatusSent
	}
	return money.Round(paidSum), money.Round(balance), status
}

// Apply re-runs the balance recomputation for one invoice. A missing invoice
// is logged and swallowed: the payment is valid on its own and the cascade
// has nothing to update.
func (s *Service) Apply(ctx context.Context, invoiceID int64) error {
	err := s.repo.Reconcile(ctx, invoiceID, reconcile)
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("ledger cascade skipped, invoice missing", slog.Int64("invoice_id", invoiceID))
		return nil
	}
	return err
}

// Record creates a payment and cascades the recomputation.
func (s *Service) Record(ctx context.Context, actor shared.Actor, req CreatePaymentRequest) (*Payment, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	if req.InvoiceID <= 0 {
		return nil, fmt.Errorf("%w: invoice is required", shared.ErrValidation)
	}

	p := Payment{
		CompanyID: actor.CompanyID,
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		Date:      s.now(),
		Note:      req.Note,
		CreatedBy: actor.UserID,
	}
	if req.MethodID > 0 {
		p.MethodID = &req.MethodID
	}
	if req.Date != nil {
		p.Date = *req.Date
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.Apply(ctx, created.InvoiceID); err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns one payment.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Payment, error) {
	return s.repo.Get(ctx, companyID, id)
}

// ListByInvoice returns the invoice's ledger entries in date order.
func (s *Service) ListByInvoice(ctx context.Context, companyID, invoiceID int64) ([]Payment, error) {
	return s.repo.ListByInvoice(ctx, companyID, invoiceID)
}

// Update edits a payment and cascades the recomputation.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdatePaymentRequest) (*Payment, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}

	cur.Amount = req.Amount
	cur.Note = req.Note
	cur.MethodID = nil
	if req.MethodID > 0 {
		cur.MethodID = &req.MethodID
	}
	if req.Date != nil {
		cur.Date = *req.Date
	}
	if err := s.repo.Update(ctx, *cur); err != nil {
		return nil, err
	}
	if err := s.Apply(ctx, cur.InvoiceID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Delete removes a payment and cascades the recomputation.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, actor.CompanyID, id); err != nil {
		return err
	}
	return s.Apply(ctx, cur.InvoiceID)
}

// ListMethods returns the company's payment methods.
func (s *Service) ListMethods(ctx context.Context, companyID int64) ([]PaymentMethod, error) {
	return s.repo.ListMethods(ctx, companyID)
}

// CreateMethod validates and stores a payment method.
func (s *Service) CreateMethod(ctx context.Context, companyID int64, req PaymentMethodRequest) (*PaymentMethod, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: method name is required", shared.ErrValidation)
	}
	return s.repo.CreateMethod(ctx, PaymentMethod{
		CompanyID:   companyID,
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
		IsActive:    req.IsActive,
	})
}

// UpdateMethod validates and rewrites a payment method.
func (s *Service) UpdateMethod(ctx context.Context, companyID, id int64, req PaymentMethodRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: method name is required", shared.ErrValidation)
	}
	return s.repo.UpdateMethod(ctx, PaymentMethod{
		ID:          id,
		CompanyID:   companyID,
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
		IsActive:    req.IsActive,
	})
}

// DeleteMethod removes a payment method.
func (s *Service) DeleteMethod(ctx context.Context, companyID, id int64) error {
	return s.repo.DeleteMethod(ctx, companyID, id)
}
