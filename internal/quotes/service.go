package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/money"
	"github.com/billfold/billfold/internal/series"
	"github.com/billfold/billfold/internal/settings"
	"github.com/billfold/billfold/internal/shared"
)

// SeriesPort issues document numbers and resolves series through the
// selection chain.
type SeriesPort interface {
	AllocateFor(ctx context.Context, companyID int64, docType series.DocumentType, explicitID int64) (string, *series.NumberSeries, error)
	ResolveFor(ctx context.Context, companyID int64, docType series.DocumentType, explicitID int64) (*series.NumberSeries, error)
	Allocate(ctx context.Context, seriesID int64) (string, error)
}

// TaxSnapshotter resolves a tax rate id to the percent to freeze on the
// document.
type TaxSnapshotter interface {
	SnapshotPercent(ctx context.Context, companyID, taxRateID int64) (float64, error)
}

// PolicyProvider resolves the company's billing policy.
type PolicyProvider interface {
	Policy(ctx context.Context, companyID int64) (settings.BillingPolicy, error)
}

// Service owns the quotation lifecycle including the conversion into an
// invoice.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	series   SeriesPort
	taxes    TaxSnapshotter
	policies PolicyProvider
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo Repository, seriesPort SeriesPort, taxes TaxSnapshotter, policies PolicyProvider) *Service {
	return &Service{
		logger:   logger,
		repo:     repo,
		series:   seriesPort,
		taxes:    taxes,
		policies: policies,
		now:      time.Now,
	}
}

func validateItems(items []QuoteItemRequest) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			return fmt.Errorf("%w: item %d name is required", shared.ErrValidation, i+1)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", shared.ErrValidation, i+1)
		}
		if it.Price <= 0 {
			return fmt.Errorf("%w: item %d price must be positive", shared.ErrValidation, i+1)
		}
	}
	return nil
}

func (s *Service) buildDetails(
	ctx context.Context,
	companyID int64,
	items []QuoteItemRequest,
	taxes []QuoteTaxRequest,
	discountPercent, discountAmount float64,
) ([]QuoteItem, []QuoteTax, []money.LineInput, error) {
	inputs := make([]money.LineInput, len(items))
	out := make([]QuoteItem, len(items))
	for i, it := range items {
		percent, err := s.taxes.SnapshotPercent(ctx, companyID, it.TaxRateID)
		if err != nil {
			return nil, nil, nil, err
		}
		inputs[i] = money.LineInput{
			Quantity:       it.Quantity,
			Price:          it.Price,
			DiscountAmount: it.DiscountAmount,
			TaxRatePercent: percent,
		}
		out[i] = QuoteItem{
			Name:           it.Name,
			Description:    it.Description,
			Quantity:       it.Quantity,
			Price:          it.Price,
			DiscountAmount: it.DiscountAmount,
			TaxRateID:      it.TaxRateID,
			TaxPercent:     percent,
			Position:       i,
		}
	}

	var subtotal, itemTax float64
	for _, l := range inputs {
		lineSubtotal := l.Quantity * l.Price
		subtotal += lineSubtotal
		itemTax += (lineSubtotal - l.DiscountAmount) * (l.TaxRatePercent / 100)
	}
	base := subtotal
	if discountPercent > 0 {
		base -= subtotal * (discountPercent / 100)
	}
	if discountAmount > 0 {
		base -= discountAmount
	}

	docTaxes := make([]QuoteTax, len(taxes))
	for i, t := range taxes {
		percent, err := s.taxes.SnapshotPercent(ctx, companyID, t.TaxRateID)
		if err != nil {
			return nil, nil, nil, err
		}
		taxBase := base
		if t.IncludeItemTax {
			taxBase += itemTax
		}
		docTaxes[i] = QuoteTax{
			TaxRateID:      t.TaxRateID,
			TaxPercent:     percent,
			IncludeItemTax: t.IncludeItemTax,
			Amount:         money.Round(taxBase * (percent / 100)),
		}
	}
	return out, docTaxes, inputs, nil
}

func applyAmounts(q *Quotation, items []QuoteItem, taxes []QuoteTax, inputs []money.LineInput) {
	taxAmounts := make([]float64, len(taxes))
	for i, t := range taxes {
		taxAmounts[i] = t.Amount
	}
	amounts, lineAmounts := money.CalculateDocument(money.DocumentInput{
		Lines:              inputs,
		DocumentTaxAmounts: taxAmounts,
		DiscountPercent:    q.DiscountPercent,
		DiscountAmount:     q.DiscountAmount,
		Sign:               1,
	})
	for i := range items {
		items[i].Subtotal = lineAmounts[i].Subtotal
		items[i].Discount = lineAmounts[i].Discount
		items[i].Tax = lineAmounts[i].Tax
		items[i].Total = lineAmounts[i].Total
	}
	q.Subtotal = amounts.Subtotal
	q.ItemTaxTotal = amounts.ItemTaxTotal
	q.TaxTotal = amounts.TaxTotal
	q.Total = amounts.Total
	q.Items = items
	q.Taxes = taxes
}

// Create builds and persists a new quotation.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateQuoteRequest) (*Quotation, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if req.ClientID <= 0 {
		return nil, fmt.Errorf("%w: client is required", shared.ErrValidation)
	}
	status := StatusDraft
	if req.Status != "" {
		status = Status(req.Status)
		if status != StatusDraft && status != StatusSent {
			return nil, fmt.Errorf("%w: invalid initial status %q", shared.ErrValidation, req.Status)
		}
	}

	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	date := s.now()
	if req.Date != nil {
		date = *req.Date
	}
	expiry := date.AddDate(0, 0, policy.QuotesExpireAfterDays)
	if req.ExpiryDate != nil {
		expiry = *req.ExpiryDate
	}

	q := &Quotation{
		CompanyID:       actor.CompanyID,
		URLKey:          invoices.NewURLKey(),
		ClientID:        req.ClientID,
		CreatedBy:       actor.UserID,
		Status:          status,
		Date:            date,
		ExpiryDate:      expiry,
		Terms:           req.Terms,
		Notes:           req.Notes,
		AccessPassword:  req.AccessPassword,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
	}

	items, taxes, inputs, err := s.buildDetails(ctx, actor.CompanyID, req.Items, req.Taxes, req.DiscountPercent, req.DiscountAmount)
	if err != nil {
		return nil, err
	}
	applyAmounts(q, items, taxes, inputs)

	if status != StatusDraft || policy.GenerateQuoteNumberForDraft {
		number, ns, err := s.series.AllocateFor(ctx, actor.CompanyID, series.DocTypeQuotation, req.SeriesID)
		if err != nil {
			return nil, err
		}
		q.Number = &number
		q.SeriesID = &ns.ID
	}

	id, err := s.repo.Create(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Get returns one quotation with its items and taxes.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, companyID, id)
}

// ListResult is a page of quotations with pagination metadata.
type ListResult struct {
	Items      []Quotation       `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns a filtered quotation page.
func (s *Service) List(ctx context.Context, req ListQuotesRequest) (*ListResult, error) {
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Pagination: shared.NewPagination(req.Page, req.PerPage, total)}, nil
}

// Update recomputes and rewrites the quotation. A converted quote is
// structurally immutable.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateQuoteRequest) (*Quotation, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if cur.Converted {
		return nil, fmt.Errorf("%w: quotation %d is converted", shared.ErrConflict, id)
	}

	q := &Quotation{
		ID:              cur.ID,
		CompanyID:       cur.CompanyID,
		Number:          cur.Number,
		URLKey:          cur.URLKey,
		ClientID:        req.ClientID,
		CreatedBy:       cur.CreatedBy,
		SeriesID:        cur.SeriesID,
		Status:          cur.Status,
		Date:            cur.Date,
		ExpiryDate:      cur.ExpiryDate,
		Terms:           req.Terms,
		Notes:           req.Notes,
		AccessPassword:  req.AccessPassword,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
	}
	if req.Date != nil {
		q.Date = *req.Date
	}
	if req.ExpiryDate != nil {
		q.ExpiryDate = *req.ExpiryDate
	}

	items, taxes, inputs, err := s.buildDetails(ctx, actor.CompanyID, req.Items, req.Taxes, req.DiscountPercent, req.DiscountAmount)
	if err != nil {
		return nil, err
	}
	applyAmounts(q, items, taxes, inputs)

	if err := s.repo.Update(ctx, q); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Delete removes a quotation, when deletion is enabled by policy and the
// quote was never converted.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return err
	}
	if cur.Converted {
		return fmt.Errorf("%w: quotation %d is converted", shared.ErrConflict, id)
	}
	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return err
	}
	if !policy.EnableQuoteDeletion {
		return fmt.Errorf("%w: quotation deletion is disabled", shared.ErrConflict)
	}
	return s.repo.Delete(ctx, actor.CompanyID, id)
}

// MarkSent moves a draft quotation to sent, allocating a number if the draft
// never received one.
func (s *Service) MarkSent(ctx context.Context, actor shared.Actor, id int64) (*Quotation, error) {
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusDraft {
		return nil, fmt.Errorf("%w: quotation %d is already %s", shared.ErrConflict, id, cur.Status)
	}

	if cur.Number == nil {
		var explicit int64
		if cur.SeriesID != nil {
			explicit = *cur.SeriesID
		}
		number, ns, err := s.series.AllocateFor(ctx, actor.CompanyID, series.DocTypeQuotation, explicit)
		if err != nil {
			return nil, err
		}
		if err := s.repo.SetNumber(ctx, id, number, ns.ID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusSent); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

func (s *Service) decide(ctx context.Context, actor shared.Actor, id int64, target Status) (*Quotation, error) {
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if cur.Converted {
		return nil, fmt.Errorf("%w: quotation %d is converted", shared.ErrConflict, id)
	}
	if cur.Status != StatusSent && cur.Status != StatusViewed {
		return nil, fmt.Errorf("%w: quotation %d is %s", shared.ErrConflict, id, cur.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Approve moves a sent or viewed quotation to approved.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (*Quotation, error) {
	return s.decide(ctx, actor, id, StatusApproved)
}

// Reject moves a sent or viewed quotation to rejected.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64) (*Quotation, error) {
	return s.decide(ctx, actor, id, StatusRejected)
}

// Cancel cancels a quotation that has not been decided or converted.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64) (*Quotation, error) {
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if cur.Converted {
		return nil, fmt.Errorf("%w: quotation %d is converted", shared.ErrConflict, id)
	}
	switch cur.Status {
	case StatusApproved, StatusRejected, StatusCancelled:
		return nil, fmt.Errorf("%w: quotation %d is %s", shared.ErrConflict, id, cur.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Copy duplicates a quotation into a fresh draft with dates recomputed from
// today.
func (s *Service) Copy(ctx context.Context, actor shared.Actor, id int64) (*Quotation, error) {
	src, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	date := s.now()
	q := &Quotation{
		CompanyID:       src.CompanyID,
		URLKey:          invoices.NewURLKey(),
		ClientID:        src.ClientID,
		CreatedBy:       actor.UserID,
		SeriesID:        src.SeriesID,
		Status:          StatusDraft,
		Date:            date,
		ExpiryDate:      date.AddDate(0, 0, policy.QuotesExpireAfterDays),
		Terms:           src.Terms,
		Notes:           src.Notes,
		DiscountPercent: src.DiscountPercent,
		DiscountAmount:  src.DiscountAmount,
	}

	items := make([]QuoteItem, len(src.Items))
	inputs := make([]money.LineInput, len(src.Items))
	for i, it := range src.Items {
		items[i] = QuoteItem{
			Name:           it.Name,
			Description:    it.Description,
			Quantity:       it.Quantity,
			Price:          it.Price,
			DiscountAmount: it.DiscountAmount,
			TaxRateID:      it.TaxRateID,
			TaxPercent:     it.TaxPercent,
			Position:       i,
		}
		inputs[i] = money.LineInput{Quantity: it.Quantity, Price: it.Price, DiscountAmount: it.DiscountAmount, TaxRatePercent: it.TaxPercent}
	}
	taxes := make([]QuoteTax, len(src.Taxes))
	for i, t := range src.Taxes {
		taxes[i] = QuoteTax{TaxRateID: t.TaxRateID, TaxPercent: t.TaxPercent, IncludeItemTax: t.IncludeItemTax, Amount: t.Amount}
	}
	applyAmounts(q, items, taxes, inputs)

	if policy.GenerateQuoteNumberForDraft {
		var explicit int64
		if src.SeriesID != nil {
			explicit = *src.SeriesID
		}
		number, ns, err := s.series.AllocateFor(ctx, actor.CompanyID, series.DocTypeQuotation, explicit)
		if err != nil {
			return nil, err
		}
		q.Number = &number
		q.SeriesID = &ns.ID
	}

	newID, err := s.repo.Create(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, newID)
}

// ConvertToInvoice derives a draft invoice from the quotation. The invoice
// series is selected independently of the quote's own series: an explicitly
// supplied one, then the default invoice series, then any active candidate.
// The invoice insert and the quote back-reference commit together; a quote
// that already carries an invoice fails with a conflict.
func (s *Service) ConvertToInvoice(ctx context.Context, actor shared.Actor, id int64, req ConvertQuoteRequest) (*invoices.Invoice, error) {
	q, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if q.Converted {
		return nil, fmt.Errorf("%w: quotation %d already converted", shared.ErrConflict, id)
	}

	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	ns, err := s.series.ResolveFor(ctx, actor.CompanyID, series.DocTypeInvoice, req.SeriesID)
	if err != nil {
		return nil, err
	}

	date := s.now()
	inv := &invoices.Invoice{
		CompanyID:       q.CompanyID,
		URLKey:          invoices.NewURLKey(),
		ClientID:        q.ClientID,
		CreatedBy:       actor.UserID,
		SeriesID:        &ns.ID,
		Status:          invoices.StatusDraft,
		Sign:            invoices.SignDebit,
		QuoteID:         &q.ID,
		Date:            date,
		DueDate:         date.AddDate(0, 0, policy.InvoicesDueAfterDays),
		Terms:           q.Terms,
		Notes:           q.Notes,
		DiscountPercent: q.DiscountPercent,
		DiscountAmount:  q.DiscountAmount,
		Subtotal:        q.Subtotal,
		ItemTaxTotal:    q.ItemTaxTotal,
		TaxTotal:        q.TaxTotal,
		Total:           q.Total,
		Paid:            0,
		Balance:         q.Total,
	}
	for i, it := range q.Items {
		inv.Items = append(inv.Items, invoices.LineItem{
			Name:           it.Name,
			Description:    it.Description,
			Quantity:       it.Quantity,
			Price:          it.Price,
			DiscountAmount: it.DiscountAmount,
			TaxRateID:      it.TaxRateID,
			TaxPercent:     it.TaxPercent,
			Position:       i,
			Subtotal:       it.Subtotal,
			Discount:       it.Discount,
			Tax:            it.Tax,
			Total:          it.Total,
		})
	}
	for _, t := range q.Taxes {
		inv.Taxes = append(inv.Taxes, invoices.DocumentTax{
			TaxRateID:      t.TaxRateID,
			TaxPercent:     t.TaxPercent,
			IncludeItemTax: t.IncludeItemTax,
			Amount:         t.Amount,
		})
	}

	if policy.GenerateInvoiceNumberForDraft {
		number, err := s.series.Allocate(ctx, ns.ID)
		if err != nil {
			return nil, err
		}
		inv.Number = &number
	}

	invoiceID, err := s.repo.ConvertToInvoice(ctx, q.ID, inv)
	if err != nil {
		return nil, err
	}
	s.logger.Info("quotation converted",
		slog.Int64("quote_id", q.ID),
		slog.Int64("invoice_id", invoiceID))
	inv.ID = invoiceID
	return inv, nil
}
