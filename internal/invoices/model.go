package invoices

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusSent   Status = "sent"
	StatusViewed Status = "viewed"
	StatusPaid   Status = "paid"
)

// Valid reports whether s is a known invoice status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusViewed, StatusPaid:
		return true
	}
	return false
}

// Signs of an invoice. A credit note carries SignCredit and reverses its
// parent's charges.
const (
	SignDebit  = 1
	SignCredit = -1
)

// Frequency is the interval at which a recurring invoice re-issues itself.
type Frequency string

const (
	FreqWeekly    Frequency = "weekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqYearly    Frequency = "yearly"
)

// Valid reports whether f is a known recurrence frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FreqWeekly, FreqMonthly, FreqQuarterly, FreqYearly:
		return true
	}
	return false
}

// Next returns the run date that follows from.
func (f Frequency) Next(from time.Time) time.Time {
	switch f {
	case FreqWeekly:
		return from.AddDate(0, 0, 7)
	case FreqQuarterly:
		return from.AddDate(0, 3, 0)
	case FreqYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// LineItem is one billed position. TaxPercent is snapshotted from the tax
// rate at save time; later rate changes never alter stored items.
type LineItem struct {
	ID             int64   `json:"id"`
	InvoiceID      int64   `json:"invoice_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	Price          float64 `json:"price"`
	DiscountAmount float64 `json:"discount_amount"`
	TaxRateID      int64   `json:"tax_rate_id"`
	TaxPercent     float64 `json:"tax_percent"`
	Position       int     `json:"position"`
	Subtotal       float64 `json:"subtotal"`
	Discount       float64 `json:"discount"`
	Tax            float64 `json:"tax"`
	Total          float64 `json:"total"`
}

// DocumentTax is a document-wide tax charge. Amount is resolved at save time
// from the snapshotted percent and the document base.
type DocumentTax struct {
	ID             int64   `json:"id"`
	InvoiceID      int64   `json:"invoice_id"`
	TaxRateID      int64   `json:"tax_rate_id"`
	TaxPercent     float64 `json:"tax_percent"`
	IncludeItemTax bool    `json:"include_item_tax"`
	Amount         float64 `json:"amount"`
}

// Invoice is the billing document aggregate. Number stays nil while the
// document is an unnumbered draft. URLKey is the opaque guest-access key,
// created once and never changed. Total and Balance are stored as absolute
// values; Sign carries the direction.
type Invoice struct {
	ID              int64      `json:"id"`
	CompanyID       int64      `json:"company_id"`
	Number          *string    `json:"number,omitempty"`
	URLKey          string     `json:"url_key"`
	ClientID        int64      `json:"client_id"`
	CreatedBy       int64      `json:"created_by"`
	SeriesID        *int64     `json:"series_id,omitempty"`
	Status          Status     `json:"status"`
	Sign            int        `json:"sign"`
	IsReadOnly      bool       `json:"is_read_only"`
	CreditParentID  *int64     `json:"credit_parent_id,omitempty"`
	QuoteID         *int64     `json:"quote_id,omitempty"`
	Date            time.Time  `json:"date"`
	DueDate         time.Time  `json:"due_date"`
	IsRecurring     bool       `json:"is_recurring"`
	RecurFrequency  Frequency  `json:"recur_frequency,omitempty"`
	RecurNextDate   *time.Time `json:"recur_next_date,omitempty"`
	Terms           string     `json:"terms"`
	Notes           string     `json:"notes"`
	AccessPassword  string     `json:"-"`
	Subtotal        float64    `json:"subtotal"`
	ItemTaxTotal    float64    `json:"item_tax_total"`
	TaxTotal        float64    `json:"tax_total"`
	DiscountAmount  float64    `json:"discount_amount"`
	DiscountPercent float64    `json:"discount_percent"`
	Total           float64    `json:"total"`
	Paid            float64    `json:"paid"`
	Balance         float64    `json:"balance"`
	Items           []LineItem `json:"items,omitempty"`
	Taxes           []DocumentTax `json:"taxes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewURLKey issues the opaque guest-access key.
func NewURLKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsOverdue reports whether the invoice is past due and still carries an open
// balance. Credit notes and paid invoices are never overdue.
func (i *Invoice) IsOverdue(now time.Time) bool {
	if i.Sign == SignCredit || i.Status == StatusPaid || i.Status == StatusDraft {
		return false
	}
	return i.Balance > 0 && now.After(i.DueDate)
}

// DaysOverdue returns how many whole days the invoice is past due, zero when
// it is not overdue.
func (i *Invoice) DaysOverdue(now time.Time) int {
	if !i.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}
