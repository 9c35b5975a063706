package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/billfold/billfold/internal/money"
	"github.com/billfold/billfold/internal/series"
	"github.com/billfold/billfold/internal/settings"
	"github.com/billfold/billfold/internal/shared"
)

// Allocator issues document numbers through the series selection chain.
type Allocator interface {
	AllocateFor(ctx context.Context, companyID int64, docType series.DocumentType, explicitID int64) (string, *series.NumberSeries, error)
}

// TaxSnapshotter resolves a tax rate id to the percent to freeze on the
// document. A zero or unknown id snapshots as zero percent.
type TaxSnapshotter interface {
	SnapshotPercent(ctx context.Context, companyID, taxRateID int64) (float64, error)
}

// PolicyProvider resolves the company's billing policy.
type PolicyProvider interface {
	Policy(ctx context.Context, companyID int64) (settings.BillingPolicy, error)
}

// Service owns the invoice lifecycle: creation, edits, numbering, sending,
// copies, and credit notes. Payment-driven status changes live in the
// payments ledger, which writes back through the same repository.
type Service struct {
	logger    *slog.Logger
	repo      Repository
	allocator Allocator
	taxes     TaxSnapshotter
	policies  PolicyProvider
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo Repository, allocator Allocator, taxes TaxSnapshotter, policies PolicyProvider) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		allocator: allocator,
		taxes:     taxes,
		policies:  policies,
		now:       time.Now,
	}
}

func validateItems(items []LineItemRequest) error {
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
		if it.DiscountAmount < 0 {
			return fmt.Errorf("%w: item %d discount must not be negative", shared.ErrValidation, i+1)
		}
	}
	return nil
}

// buildDetails snapshots tax percents onto items and document taxes and
// resolves document-tax amounts against the discounted base. Amounts are
// frozen here; later tax-rate changes never touch stored documents.
func (s *Service) buildDetails(
	ctx context.Context,
	companyID int64,
	items []LineItemRequest,
	taxes []DocumentTaxRequest,
	discountPercent, discountAmount float64,
	negate bool,
) ([]LineItem, []DocumentTax, []money.LineInput, error) {
	lineInputs := make([]money.LineInput, len(items))
	out := make([]LineItem, len(items))
	for i, it := range items {
		percent, err := s.taxes.SnapshotPercent(ctx, companyID, it.TaxRateID)
		if err != nil {
			return nil, nil, nil, err
		}
		qty := it.Quantity
		if negate {
			qty = -qty
		}
		lineInputs[i] = money.LineInput{
			Quantity:       qty,
			Price:          it.Price,
			DiscountAmount: it.DiscountAmount,
			TaxRatePercent: percent,
		}
		out[i] = LineItem{
			Name:           it.Name,
			Description:    it.Description,
			Quantity:       qty,
			Price:          it.Price,
			DiscountAmount: it.DiscountAmount,
			TaxRateID:      it.TaxRateID,
			TaxPercent:     percent,
			Position:       i,
		}
	}

	var subtotal, itemTax float64
	for _, l := range lineInputs {
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

	docTaxes := make([]DocumentTax, len(taxes))
	for i, t := range taxes {
		percent, err := s.taxes.SnapshotPercent(ctx, companyID, t.TaxRateID)
		if err != nil {
			return nil, nil, nil, err
		}
		taxBase := base
		if t.IncludeItemTax {
			taxBase += itemTax
		}
		docTaxes[i] = DocumentTax{
			TaxRateID:      t.TaxRateID,
			TaxPercent:     percent,
			IncludeItemTax: t.IncludeItemTax,
			Amount:         money.Round(taxBase * (percent / 100)),
		}
	}
	return out, docTaxes, lineInputs, nil
}

func applyAmounts(inv *Invoice, items []LineItem, taxes []DocumentTax, inputs []money.LineInput, paid float64) {
	taxAmounts := make([]float64, len(taxes))
	for i, t := range taxes {
		taxAmounts[i] = t.Amount
	}
	amounts, lineAmounts := money.CalculateDocument(money.DocumentInput{
		Lines:              inputs,
		DocumentTaxAmounts: taxAmounts,
		DiscountPercent:    inv.DiscountPercent,
		DiscountAmount:     inv.DiscountAmount,
		Sign:               inv.Sign,
		Paid:               paid,
	})
	for i := range items {
		items[i].Subtotal = lineAmounts[i].Subtotal
		items[i].Discount = lineAmounts[i].Discount
		items[i].Tax = lineAmounts[i].Tax
		items[i].Total = lineAmounts[i].Total
	}
	inv.Subtotal = amounts.Subtotal
	inv.ItemTaxTotal = amounts.ItemTaxTotal
	inv.TaxTotal = amounts.TaxTotal
	inv.Total = amounts.Total
	inv.Paid = amounts.Paid
	inv.Balance = amounts.Balance
	inv.Items = items
	inv.Taxes = taxes
}

// Create builds and persists a new invoice. A number is allocated at
// creation when the document starts outside draft, or when the draft
// numbering policy demands one.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateInvoiceRequest) (*Invoice, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if req.ClientID <= 0 {
		return nil, fmt.Errorf("%w: client is required", shared.ErrValidation)
	}
	status := StatusDraft
	if req.Status != "" {
		status = Status(req.Status)
		if !status.Valid() || status == StatusPaid || status == StatusViewed {
			return nil, fmt.Errorf("%w: invalid initial status %q", shared.ErrValidation, req.Status)
		}
	}

	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	taxes := req.Taxes
	if len(taxes) == 0 && policy.DefaultInvoiceTaxRateID > 0 {
		taxes = []DocumentTaxRequest{{TaxRateID: policy.DefaultInvoiceTaxRateID}}
	}

	date := s.now()
	if req.Date != nil {
		date = *req.Date
	}
	dueDate := date.AddDate(0, 0, policy.InvoicesDueAfterDays)
	if req.DueDate != nil {
		dueDate = *req.DueDate
	}

	inv := &Invoice{
		CompanyID:       actor.CompanyID,
		URLKey:          NewURLKey(),
		ClientID:        req.ClientID,
		CreatedBy:       actor.UserID,
		Status:          status,
		Sign:            SignDebit,
		Date:            date,
		DueDate:         dueDate,
		Terms:           req.Terms,
		Notes:           req.Notes,
		AccessPassword:  req.AccessPassword,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
	}
	if req.Recurrence != nil {
		freq := Frequency(req.Recurrence.Frequency)
		if !freq.Valid() {
			return nil, fmt.Errorf("%w: invalid recurrence frequency %q", shared.ErrValidation, req.Recurrence.Frequency)
		}
		next := freq.Next(date)
		inv.IsRecurring = true
		inv.RecurFrequency = freq
		inv.RecurNextDate = &next
	}

	items, docTaxes, inputs, err := s.buildDetails(ctx, actor.CompanyID, req.Items, taxes, req.DiscountPercent, req.DiscountAmount, false)
	if err != nil {
		return nil, err
	}
	applyAmounts(inv, items, docTaxes, inputs, 0)

	if status != StatusDraft || policy.GenerateInvoiceNumberForDraft {
		number, ns, err := s.allocator.AllocateFor(ctx, actor.CompanyID, series.DocTypeInvoice, req.SeriesID)
		if err != nil {
			return nil, err
		}
		inv.Number = &number
		inv.SeriesID = &ns.ID
	}
	if status == StatusSent && policy.ReadOnlyOnSendEnabled() {
		inv.IsReadOnly = true
	}

	id, err := s.repo.Create(ctx, inv)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Get returns one invoice with its items and taxes.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, companyID, id)
}

// ListResult is a page of invoices with pagination metadata.
type ListResult struct {
	Items      []Invoice         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns a filtered invoice page.
func (s *Service) List(ctx context.Context, req ListInvoicesRequest) (*ListResult, error) {
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Pagination: shared.NewPagination(req.Page, req.PerPage, total)}, nil
}

// Update recomputes and rewrites the invoice, replacing items and taxes
// wholesale. The stored paid sum is preserved and the balance recomputed
// against the new total. Read-only invoices reject edits.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateInvoiceRequest) (*Invoice, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if cur.IsReadOnly {
		return nil, fmt.Errorf("%w: invoice %d is read-only", shared.ErrConflict, id)
	}

	inv := &Invoice{
		ID:              cur.ID,
		CompanyID:       cur.CompanyID,
		Number:          cur.Number,
		URLKey:          cur.URLKey,
		ClientID:        req.ClientID,
		CreatedBy:       cur.CreatedBy,
		SeriesID:        cur.SeriesID,
		Status:          cur.Status,
		Sign:            cur.Sign,
		CreditParentID:  cur.CreditParentID,
		QuoteID:         cur.QuoteID,
		Date:            cur.Date,
		DueDate:         cur.DueDate,
		Terms:           req.Terms,
		Notes:           req.Notes,
		AccessPassword:  req.AccessPassword,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
	}
	if req.Date != nil {
		inv.Date = *req.Date
	}
	if req.DueDate != nil {
		inv.DueDate = *req.DueDate
	}
	if req.Recurrence != nil {
		freq := Frequency(req.Recurrence.Frequency)
		if !freq.Valid() {
			return nil, fmt.Errorf("%w: invalid recurrence frequency %q", shared.ErrValidation, req.Recurrence.Frequency)
		}
		inv.IsRecurring = true
		inv.RecurFrequency = freq
		if cur.RecurFrequency == freq && cur.RecurNextDate != nil {
			inv.RecurNextDate = cur.RecurNextDate
		} else {
			next := freq.Next(inv.Date)
			inv.RecurNextDate = &next
		}
	}

	negate := cur.Sign == SignCredit
	items, docTaxes, inputs, err := s.buildDetails(ctx, actor.CompanyID, req.Items, req.Taxes, req.DiscountPercent, req.DiscountAmount, negate)
	if err != nil {
		return nil, err
	}
	applyAmounts(inv, items, docTaxes, inputs, cur.Paid)

	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Delete removes an invoice and its payments, when deletion is enabled by
// policy.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return err
	}
	if !policy.EnableInvoiceDeletion {
		return fmt.Errorf("%w: invoice deletion is disabled", shared.ErrConflict)
	}
	return s.repo.Delete(ctx, actor.CompanyID, id)
}

// MarkSent moves a draft invoice to sent, allocating a number if the draft
// never received one, and flips the document read-only when the policy says
// sending freezes it.
func (s *Service) MarkSent(ctx context.Context, actor shared.Actor, id int64) (*Invoice, error) {
	cur, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusDraft {
		return nil, fmt.Errorf("%w: invoice %d is already %s", shared.ErrConflict, id, cur.Status)
	}
	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	var number string
	var seriesID int64
	if cur.Number == nil {
		var explicit int64
		if cur.SeriesID != nil {
			explicit = *cur.SeriesID
		}
		n, ns, err := s.allocator.AllocateFor(ctx, actor.CompanyID, series.DocTypeInvoice, explicit)
		if err != nil {
			return nil, err
		}
		number, seriesID = n, ns.ID
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if number != "" {
			if err := repo.SetNumber(ctx, id, number, seriesID); err != nil {
				return err
			}
		}
		if err := repo.UpdateStatus(ctx, id, StatusSent); err != nil {
			return err
		}
		if policy.ReadOnlyOnSendEnabled() {
			return repo.SetReadOnly(ctx, id, true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, id)
}

// Copy duplicates an invoice into a fresh draft: new identity, new URL key,
// zero payments, dates recomputed from today.
func (s *Service) Copy(ctx context.Context, actor shared.Actor, id int64) (*Invoice, error) {
	src, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	date := s.now()
	inv := &Invoice{
		CompanyID:       src.CompanyID,
		URLKey:          NewURLKey(),
		ClientID:        src.ClientID,
		CreatedBy:       actor.UserID,
		SeriesID:        src.SeriesID,
		Status:          StatusDraft,
		Sign:            src.Sign,
		Date:            date,
		DueDate:         date.AddDate(0, 0, policy.InvoicesDueAfterDays),
		Terms:           src.Terms,
		Notes:           src.Notes,
		DiscountPercent: src.DiscountPercent,
		DiscountAmount:  src.DiscountAmount,
	}

	items := make([]LineItem, len(src.Items))
	inputs := make([]money.LineInput, len(src.Items))
	for i, it := range src.Items {
		items[i] = LineItem{
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
	taxes := make([]DocumentTax, len(src.Taxes))
	for i, t := range src.Taxes {
		taxes[i] = DocumentTax{TaxRateID: t.TaxRateID, TaxPercent: t.TaxPercent, IncludeItemTax: t.IncludeItemTax, Amount: t.Amount}
	}
	applyAmounts(inv, items, taxes, inputs, 0)

	if policy.GenerateInvoiceNumberForDraft {
		var explicit int64
		if src.SeriesID != nil {
			explicit = *src.SeriesID
		}
		number, ns, err := s.allocator.AllocateFor(ctx, actor.CompanyID, series.DocTypeInvoice, explicit)
		if err != nil {
			return nil, err
		}
		inv.Number = &number
		inv.SeriesID = &ns.ID
	}

	newID, err := s.repo.Create(ctx, inv)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, actor.CompanyID, newID)
}

// RunRecurring copies every recurring invoice whose next run date has
// elapsed and advances its schedule. A failure on one source invoice is
// logged and does not stop the remaining ones. Generated copies go through
// the regular Copy workflow, so they start as drafts and never inherit the
// recurring schedule themselves.
func (s *Service) RunRecurring(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.ListRecurringDue(ctx, now)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range due {
		src := &due[i]
		if src.RecurNextDate == nil || !src.RecurFrequency.Valid() {
			continue
		}
		actor := shared.Actor{UserID: src.CreatedBy, CompanyID: src.CompanyID}
		generated, err := s.Copy(ctx, actor, src.ID)
		if err != nil {
			s.logger.Error("recurring invoice run failed",
				slog.Int64("source_id", src.ID),
				slog.Any("error", err))
			continue
		}

		next := src.RecurFrequency.Next(*src.RecurNextDate)
		// Catch up after downtime instead of generating one copy per missed
		// period.
		for !next.After(now) {
			next = src.RecurFrequency.Next(next)
		}
		if err := s.repo.ScheduleNextRecurrence(ctx, src.ID, next); err != nil {
			return created, err
		}
		created++
		s.logger.Info("recurring invoice generated",
			slog.Int64("source_id", src.ID),
			slog.Int64("invoice_id", generated.ID),
			slog.Time("next_run", next))
	}
	return created, nil
}

// CreateCredit derives a credit note from an invoice: quantities and
// document-tax amounts are negated, the sign flips, and a number is always
// allocated regardless of the draft numbering policy.
func (s *Service) CreateCredit(ctx context.Context, actor shared.Actor, parentID int64, req CreditNoteRequest) (*Invoice, error) {
	parent, err := s.repo.Get(ctx, actor.CompanyID, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Sign == SignCredit {
		return nil, fmt.Errorf("%w: cannot credit a credit note", shared.ErrConflict)
	}
	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	date := s.now()
	inv := &Invoice{
		CompanyID:       parent.CompanyID,
		URLKey:          NewURLKey(),
		ClientID:        parent.ClientID,
		CreatedBy:       actor.UserID,
		Status:          StatusDraft,
		Sign:            SignCredit,
		CreditParentID:  &parent.ID,
		Date:            date,
		DueDate:         date.AddDate(0, 0, policy.InvoicesDueAfterDays),
		Terms:           parent.Terms,
		Notes:           req.Notes,
		DiscountPercent: parent.DiscountPercent,
		DiscountAmount:  parent.DiscountAmount,
	}

	items := make([]LineItem, len(parent.Items))
	inputs := make([]money.LineInput, len(parent.Items))
	for i, it := range parent.Items {
		items[i] = LineItem{
			Name:           it.Name,
			Description:    it.Description,
			Quantity:       -it.Quantity,
			Price:          it.Price,
			DiscountAmount: it.DiscountAmount,
			TaxRateID:      it.TaxRateID,
			TaxPercent:     it.TaxPercent,
			Position:       i,
		}
		inputs[i] = money.LineInput{Quantity: -it.Quantity, Price: it.Price, DiscountAmount: it.DiscountAmount, TaxRatePercent: it.TaxPercent}
	}
	taxes := make([]DocumentTax, len(parent.Taxes))
	for i, t := range parent.Taxes {
		taxes[i] = DocumentTax{TaxRateID: t.TaxRateID, TaxPercent: t.TaxPercent, IncludeItemTax: t.IncludeItemTax, Amount: -t.Amount}
	}
	applyAmounts(inv, items, taxes, inputs, 0)

	number, ns, err := s.allocator.AllocateFor(ctx, actor.CompanyID, series.DocTypeInvoice, req.SeriesID)
	if err != nil {
		return nil, err
	}
	inv.Number = &number
	inv.SeriesID = &ns.ID

	newID, err := s.repo.Create(ctx, inv)
	if err != nil {
		return nil, err
	}
	s.logger.Info("credit note created",
		slog.Int64("parent_id", parent.ID),
		slog.Int64("credit_id", newID),
		slog.String("number", number))
	return s.repo.Get(ctx, actor.CompanyID, newID)
}
