package series

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DocumentType narrows which documents a series may number.
type DocumentType string

const (
	DocTypeInvoice   DocumentType = "invoice"
	DocTypeQuotation DocumentType = "quotation"
	DocTypeBoth      DocumentType = "both"
)

// Accepts reports whether the series can number the given document type.
func (t DocumentType) Accepts(target DocumentType) bool {
	return t == DocTypeBoth || t == target
}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocTypeInvoice, DocTypeQuotation, DocTypeBoth:
		return true
	}
	return false
}

// Format placeholders understood by GenerateNumber.
const (
	PlaceholderID    = "{{{id}}}"
	PlaceholderYear  = "{{{year}}}"
	PlaceholderMonth = "{{{month}}}"
)

// NumberSeries is a company-scoped counter plus format template issuing
// human-readable document identifiers. NextID strictly increases and a value
// is never reused once issued.
type NumberSeries struct {
	ID               int64        `json:"id"`
	CompanyID        int64        `json:"company_id"`
	Name             string       `json:"name"`
	DocumentType     DocumentType `json:"document_type"`
	IdentifierFormat string       `json:"identifier_format"`
	NextID           int64        `json:"next_id"`
	LeftPad          int          `json:"left_pad"`
	IsDefault        bool         `json:"is_default"`
	IsActive         bool         `json:"is_active"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// GenerateNumber formats the identifier the series would issue next. It is
// pure: deterministic given the series state and now, and mutates nothing.
func GenerateNumber(s NumberSeries, now time.Time) string {
	return FormatNumber(s.IdentifierFormat, s.NextID, s.LeftPad, now)
}

// FormatNumber substitutes the sequence value and date parts into format.
// Each placeholder is substituted once, matching the original templates.
func FormatNumber(format string, seq int64, leftPad int, now time.Time) string {
	id := strconv.FormatInt(seq, 10)
	if leftPad > 0 && len(id) < leftPad {
		id = strings.Repeat("0", leftPad-len(id)) + id
	}
	number := strings.Replace(format, PlaceholderID, id, 1)
	number = strings.Replace(number, PlaceholderYear, strconv.Itoa(now.Year()), 1)
	number = strings.Replace(number, PlaceholderMonth, fmt.Sprintf("%02d", int(now.Month())), 1)
	return number
}
