// Package money computes line-item and document-level monetary totals.
// It is pure: callers validate input and persist the result.
package money

import "github.com/shopspring/decimal"

// LineInput carries the fields a line total is derived from. TaxRatePercent is
// the percent snapshotted on the item, not a live tax-rate lookup.
type LineInput struct {
	Quantity       float64
	Price          float64
	DiscountAmount float64
	TaxRatePercent float64
}

// LineAmounts is the computed breakdown of one line.
type LineAmounts struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// DocumentInput aggregates everything document totals depend on.
// DocumentTaxAmounts are already-resolved document-level tax charges; they are
// summed, never recomputed. Sign is +1 or -1 (-1 marks a credit document).
type DocumentInput struct {
	Lines              []LineInput
	DocumentTaxAmounts []float64
	DiscountPercent    float64
	DiscountAmount     float64
	Sign               int
	Paid               float64
}

// DocumentAmounts is the computed breakdown of a document. Total and Balance
// are absolute values; the document's sign carries the direction.
type DocumentAmounts struct {
	Subtotal        float64 `json:"subtotal"`
	ItemTaxTotal    float64 `json:"item_tax_total"`
	TaxTotal        float64 `json:"tax_total"`
	DiscountAmount  float64 `json:"discount_amount"`
	DiscountPercent float64 `json:"discount_percent"`
	Total           float64 `json:"total"`
	Paid            float64 `json:"paid"`
	Balance         float64 `json:"balance"`
}

// Round applies the shared rounding policy: banker's rounding to 2 decimals,
// applied at output time only, never to intermediate figures.
func Round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).RoundBank(2).Float64()
	return f
}

// CalculateLine derives the amounts of a single line.
func CalculateLine(l LineInput) LineAmounts {
	subtotal := l.Quantity * l.Price
	taxable := subtotal - l.DiscountAmount
	tax := taxable * (l.TaxRatePercent / 100)
	return LineAmounts{
		Subtotal: Round(subtotal),
		Discount: Round(l.DiscountAmount),
		Tax:      Round(tax),
		Total:    Round(taxable + tax),
	}
}

// CalculateDocument derives per-line and document amounts in one pass.
// The document discount (percent first, then fixed amount, both additive) is
// applied at the document level only, never per line.
func CalculateDocument(in DocumentInput) (DocumentAmounts, []LineAmounts) {
	sign := in.Sign
	if sign != -1 {
		sign = 1
	}

	var subtotal, itemTaxTotal float64
	lineAmounts := make([]LineAmounts, len(in.Lines))
	for i, l := range in.Lines {
		lineSubtotal := l.Quantity * l.Price
		taxable := lineSubtotal - l.DiscountAmount
		lineTax := taxable * (l.TaxRatePercent / 100)
		lineAmounts[i] = LineAmounts{
			Subtotal: Round(lineSubtotal),
			Discount: Round(l.DiscountAmount),
			Tax:      Round(lineTax),
			Total:    Round(taxable + lineTax),
		}
		subtotal += lineSubtotal
		itemTaxTotal += lineTax
	}

	discounted := subtotal
	if in.DiscountPercent > 0 {
		discounted -= subtotal * (in.DiscountPercent / 100)
	}
	if in.DiscountAmount > 0 {
		discounted -= in.DiscountAmount
	}

	var taxTotal float64
	for _, amount := range in.DocumentTaxAmounts {
		taxTotal += amount
	}

	total := (discounted + itemTaxTotal + taxTotal) * float64(sign)
	balance := total - in.Paid

	return DocumentAmounts{
		Subtotal:        Round(subtotal),
		ItemTaxTotal:    Round(itemTaxTotal),
		TaxTotal:        Round(taxTotal),
		DiscountAmount:  Round(in.DiscountAmount),
		DiscountPercent: in.DiscountPercent,
		Total:           Round(abs(total)),
		Paid:            Round(in.Paid),
		Balance:         Round(abs(balance)),
	}, lineAmounts
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
