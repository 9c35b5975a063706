package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateLine(t *testing.T) {
	amounts := CalculateLine(LineInput{Quantity: 2, Price: 100, TaxRatePercent: 10})
	require.Equal(t, 200.0, amounts.Subtotal)
	require.Equal(t, 0.0, amounts.Discount)
	require.Equal(t, 20.0, amounts.Tax)
	require.Equal(t, 220.0, amounts.Total)
}

func TestCalculateLineWithDiscount(t *testing.T) {
	amounts := CalculateLine(LineInput{Quantity: 3, Price: 50, DiscountAmount: 30, TaxRatePercent: 20})
	require.Equal(t, 150.0, amounts.Subtotal)
	require.Equal(t, 30.0, amounts.Discount)
	require.Equal(t, 24.0, amounts.Tax)
	require.Equal(t, 144.0, amounts.Total)
}

func TestCalculateDocument(t *testing.T) {
	doc, lines := CalculateDocument(DocumentInput{
		Lines: []LineInput{
			{Quantity: 2, Price: 100, TaxRatePercent: 10},
			{Quantity: 1, Price: 300, DiscountAmount: 50, TaxRatePercent: 10},
		},
		Sign: 1,
	})
	require.Len(t, lines, 2)
	require.Equal(t, 500.0, doc.Subtotal)
	require.Equal(t, 45.0, doc.ItemTaxTotal)
	require.Equal(t, 545.0, doc.Total)
	require.Equal(t, 545.0, doc.Balance)
}

func TestCalculateDocumentGlobalDiscounts(t *testing.T) {
	doc, _ := CalculateDocument(DocumentInput{
		Lines:           []LineInput{{Quantity: 1, Price: 1000}},
		DiscountPercent: 10,
		DiscountAmount:  50,
		Sign:            1,
	})
	// 1000 - 100 (percent) - 50 (fixed), both applied at document level.
	require.Equal(t, 1000.0, doc.Subtotal)
	require.Equal(t, 850.0, doc.Total)
}

func TestCalculateDocumentTaxEntries(t *testing.T) {
	doc, _ := CalculateDocument(DocumentInput{
		Lines:              []LineInput{{Quantity: 1, Price: 200}},
		DocumentTaxAmounts: []float64{10, 5.5},
		Sign:               1,
	})
	require.Equal(t, 15.5, doc.TaxTotal)
	require.Equal(t, 215.5, doc.Total)
}

func TestCalculateDocumentCreditSign(t *testing.T) {
	doc, lines := CalculateDocument(DocumentInput{
		Lines: []LineInput{{Quantity: -2, Price: 100, TaxRatePercent: 10}},
		Sign:  -1,
	})
	// Item totals go negative; the document reports absolute values.
	require.Equal(t, -220.0, lines[0].Total)
	require.Equal(t, 220.0, doc.Total)
	require.Equal(t, 220.0, doc.Balance)
}

func TestCalculateDocumentBalanceAfterPayment(t *testing.T) {
	doc, _ := CalculateDocument(DocumentInput{
		Lines: []LineInput{{Quantity: 1, Price: 1000}},
		Sign:  1,
		Paid:  400,
	})
	require.Equal(t, 1000.0, doc.Total)
	require.Equal(t, 400.0, doc.Paid)
	require.Equal(t, 600.0, doc.Balance)
}

func TestRoundBankers(t *testing.T) {
	require.Equal(t, 2.22, Round(2.225))
	require.Equal(t, 2.24, Round(2.235))
	require.Equal(t, 1.0, Round(1.0000000001))
}

func TestRoundingAppliedAtOutputOnly(t *testing.T) {
	// Three lines of 0.333… each would drift if rounded per step.
	doc, _ := CalculateDocument(DocumentInput{
		Lines: []LineInput{
			{Quantity: 1, Price: 1.0 / 3},
			{Quantity: 1, Price: 1.0 / 3},
			{Quantity: 1, Price: 1.0 / 3},
		},
		Sign: 1,
	})
	require.Equal(t, 1.0, doc.Subtotal)
	require.Equal(t, 1.0, doc.Total)
}
