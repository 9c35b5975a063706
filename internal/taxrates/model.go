package taxrates

import "time"

// TaxRate represents a company tax rate configuration. Line items snapshot the
// percent at save time; editing a rate never changes historical documents.
type TaxRate struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	Percent   float64   `json:"percent"`
	IsDefault bool      `json:"is_default"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
