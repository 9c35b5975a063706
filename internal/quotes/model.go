package quotes

import "time"

// Status is the quotation lifecycle state. Converted is not a stored status:
// it is derived from the invoice back-reference.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusViewed    Status = "viewed"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known quotation status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusViewed, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// QuoteItem is one quoted position with the tax percent snapshotted at save
// time.
type QuoteItem struct {
	ID             int64   `json:"id"`
	QuoteID        int64   `json:"quote_id"`
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

// QuoteTax is a document-wide tax charge with its amount resolved at save
// time.
type QuoteTax struct {
	ID             int64   `json:"id"`
	QuoteID        int64   `json:"quote_id"`
	TaxRateID      int64   `json:"tax_rate_id"`
	TaxPercent     float64 `json:"tax_percent"`
	IncludeItemTax bool    `json:"include_item_tax"`
	Amount         float64 `json:"amount"`
}

// Quotation is the quote document aggregate. Once InvoiceID is set the quote
// is structurally immutable: edits and deletion fail even though the stored
// status still reads approved.
type Quotation struct {
	ID              int64       `json:"id"`
	CompanyID       int64       `json:"company_id"`
	Number          *string     `json:"number,omitempty"`
	URLKey          string      `json:"url_key"`
	ClientID        int64       `json:"client_id"`
	CreatedBy       int64       `json:"created_by"`
	SeriesID        *int64      `json:"series_id,omitempty"`
	Status          Status      `json:"status"`
	InvoiceID       *int64      `json:"invoice_id,omitempty"`
	Converted       bool        `json:"converted"`
	Date            time.Time   `json:"date"`
	ExpiryDate      time.Time   `json:"expiry_date"`
	Terms           string      `json:"terms"`
	Notes           string      `json:"notes"`
	AccessPassword  string      `json:"-"`
	Subtotal        float64     `json:"subtotal"`
	ItemTaxTotal    float64     `json:"item_tax_total"`
	TaxTotal        float64     `json:"tax_total"`
	DiscountAmount  float64     `json:"discount_amount"`
	DiscountPercent float64     `json:"discount_percent"`
	Total           float64     `json:"total"`
	Items           []QuoteItem `json:"items,omitempty"`
	Taxes           []QuoteTax  `json:"taxes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// IsExpired reports whether the quote's validity window has passed without a
// decision.
func (q *Quotation) IsExpired(now time.Time) bool {
	switch q.Status {
	case StatusApproved, StatusRejected, StatusCancelled:
		return false
	}
	return now.After(q.ExpiryDate)
}
