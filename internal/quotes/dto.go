package quotes

import "time"

type QuoteItemRequest struct {
	Name           string  `json:"name" validate:"required"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
	Price          float64 `json:"price" validate:"required,gt=0"`
	DiscountAmount float64 `json:"discount_amount" validate:"gte=0"`
	TaxRateID      int64   `json:"tax_rate_id" validate:"gte=0"`
}

type QuoteTaxRequest struct {
	TaxRateID      int64 `json:"tax_rate_id" validate:"required,gt=0"`
	IncludeItemTax bool  `json:"include_item_tax"`
}

type CreateQuoteRequest struct {
	ClientID        int64              `json:"client_id" validate:"required,gt=0"`
	SeriesID        int64              `json:"series_id" validate:"gte=0"`
	Status          string             `json:"status" validate:"omitempty,oneof=draft sent"`
	Date            *time.Time         `json:"date,omitempty"`
	ExpiryDate      *time.Time         `json:"expiry_date,omitempty"`
	DiscountPercent float64            `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountAmount  float64            `json:"discount_amount" validate:"gte=0"`
	Terms           string             `json:"terms"`
	Notes           string             `json:"notes"`
	AccessPassword  string             `json:"access_password"`
	Items           []QuoteItemRequest `json:"items" validate:"required,min=1,dive"`
	Taxes           []QuoteTaxRequest  `json:"taxes" validate:"dive"`
}

type UpdateQuoteRequest struct {
	ClientID        int64              `json:"client_id" validate:"required,gt=0"`
	Date            *time.Time         `json:"date,omitempty"`
	ExpiryDate      *time.Time         `json:"expiry_date,omitempty"`
	DiscountPercent float64            `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountAmount  float64            `json:"discount_amount" validate:"gte=0"`
	Terms           string             `json:"terms"`
	Notes           string             `json:"notes"`
	AccessPassword  string             `json:"access_password"`
	Items           []QuoteItemRequest `json:"items" validate:"required,min=1,dive"`
	Taxes           []QuoteTaxRequest  `json:"taxes" validate:"dive"`
}

type ConvertQuoteRequest struct {
	SeriesID int64 `json:"series_id" validate:"gte=0"`
}

// ListQuotesRequest carries the list filters.
type ListQuotesRequest struct {
	CompanyID int64
	ClientID  int64
	Status    Status
	Converted *bool
	Search    string
	Page      int
	PerPage   int
}
