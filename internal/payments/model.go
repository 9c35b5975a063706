package payments

import "time"

// Payment is one ledger entry against exactly one invoice. Payments live
// independently of the invoice; every mutation cascades into a full balance
// recomputation on the referenced invoice.
type Payment struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	InvoiceID int64     `json:"invoice_id"`
	MethodID  *int64    `json:"method_id,omitempty"`
	Amount    float64   `json:"amount"`
	Date      time.Time `json:"date"`
	Note      string    `json:"note"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentMethod is a company-scoped label for how a payment arrived.
type PaymentMethod struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"is_default"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
