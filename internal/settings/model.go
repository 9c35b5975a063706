package settings

// Setting is one company-scoped configuration entry. Values are stored as
// text and parsed by the typed accessors on Service.
type Setting struct {
	CompanyID int64  `json:"company_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Category  string `json:"category"`
}

// Keys consumed by the billing core.
const (
	KeyInvoicesDueAfter       = "invoices_due_after"
	KeyQuotesExpireAfter      = "quotes_expire_after"
	KeyGenerateInvoiceDraftNo = "generate_invoice_number_for_draft"
	KeyGenerateQuoteDraftNo   = "generate_quote_number_for_draft"
	KeyEnableInvoiceDeletion  = "enable_invoice_deletion"
	KeyEnableQuoteDeletion    = "enable_quote_deletion"
	KeyReadOnlyToggle         = "read_only_toggle"
	KeyDefaultInvoiceTaxRate  = "default_invoice_tax_rate"
)

// ReadOnlyOnSend is the read_only_toggle value that flips invoices read-only
// when they are marked sent.
const ReadOnlyOnSend = 2

// BillingPolicy is the typed view of the settings the billing core consumes.
// It is resolved once per operation and passed explicitly into services, never
// read through a global accessor.
type BillingPolicy struct {
	InvoicesDueAfterDays          int
	QuotesExpireAfterDays         int
	GenerateInvoiceNumberForDraft bool
	GenerateQuoteNumberForDraft   bool
	EnableInvoiceDeletion         bool
	EnableQuoteDeletion           bool
	ReadOnlyToggle                int
	DefaultInvoiceTaxRateID       int64
}

// DefaultPolicy mirrors the application defaults used when a key is unset.
func DefaultPolicy() BillingPolicy {
	return BillingPolicy{
		InvoicesDueAfterDays:          30,
		QuotesExpireAfterDays:         15,
		GenerateInvoiceNumberForDraft: true,
		GenerateQuoteNumberForDraft:   true,
		EnableInvoiceDeletion:         false,
		EnableQuoteDeletion:           false,
		ReadOnlyToggle:                4,
		DefaultInvoiceTaxRateID:       0,
	}
}

// ReadOnlyOnSendEnabled reports whether sending a document should flip it
// read-only under this policy.
func (p BillingPolicy) ReadOnlyOnSendEnabled() bool {
	return p.ReadOnlyToggle == ReadOnlyOnSend
}
