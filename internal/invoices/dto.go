package invoices

import "time"

type LineItemRequest struct {
	Name           string  `json:"name" validate:"required"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
	Price          float64 `json:"price" validate:"required,gt=0"`
	DiscountAmount float64 `json:"discount_amount" validate:"gte=0"`
	TaxRateID      int64   `json:"tax_rate_id" validate:"gte=0"`
}

type DocumentTaxRequest struct {
	TaxRateID      int64 `json:"tax_rate_id" validate:"required,gt=0"`
	IncludeItemTax bool  `json:"include_item_tax"`
}

// RecurrenceRequest enables the recurring schedule on a document.
type RecurrenceRequest struct {
	Frequency string `json:"frequency" validate:"required,oneof=weekly monthly quarterly yearly"`
}

type CreateInvoiceRequest struct {
	ClientID        int64                `json:"client_id" validate:"required,gt=0"`
	SeriesID        int64                `json:"series_id" validate:"gte=0"`
	Status          string               `json:"status" validate:"omitempty,oneof=draft sent"`
	Date            *time.Time           `json:"date,omitempty"`
	DueDate         *time.Time           `json:"due_date,omitempty"`
	DiscountPercent float64              `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountAmount  float64              `json:"discount_amount" validate:"gte=0"`
	Terms           string               `json:"terms"`
	Notes           string               `json:"notes"`
	AccessPassword  string               `json:"access_password"`
	Recurrence      *RecurrenceRequest   `json:"recurrence,omitempty"`
	Items           []LineItemRequest    `json:"items" validate:"required,min=1,dive"`
	Taxes           []DocumentTaxRequest `json:"taxes" validate:"dive"`
}

type UpdateInvoiceRequest struct {
	ClientID        int64                `json:"client_id" validate:"required,gt=0"`
	Date            *time.Time           `json:"date,omitempty"`
	DueDate         *time.Time           `json:"due_date,omitempty"`
	DiscountPercent float64              `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountAmount  float64              `json:"discount_amount" validate:"gte=0"`
	Terms           string               `json:"terms"`
	Notes           string               `json:"notes"`
	AccessPassword  string               `json:"access_password"`
	Recurrence      *RecurrenceRequest   `json:"recurrence,omitempty"`
	Items           []LineItemRequest    `json:"items" validate:"required,min=1,dive"`
	Taxes           []DocumentTaxRequest `json:"taxes" validate:"dive"`
}

type CreditNoteRequest struct {
	SeriesID int64  `json:"series_id" validate:"gte=0"`
	Notes    string `json:"notes"`
}

// ListInvoicesRequest carries the list filters. Overdue narrows to documents
// past due with an open balance; Search matches number and notes.
type ListInvoicesRequest struct {
	CompanyID int64
	ClientID  int64
	Status    Status
	Overdue   bool
	Search    string
	Page      int
	PerPage   int
}
