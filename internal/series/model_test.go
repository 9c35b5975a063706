package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	now := time.Date(2025, time.March, 9, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		format  string
		seq     int64
		leftPad int
		want    string
	}{
		{"padded with year", "INV-{{{year}}}-{{{id}}}", 7, 4, "INV-2025-0007"},
		{"no padding", "Q{{{id}}}", 42, 0, "Q42"},
		{"pad shorter than value", "{{{id}}}", 12345, 3, "12345"},
		{"month zero padded", "{{{year}}}/{{{month}}}/{{{id}}}", 1, 2, "2025/03/01"},
		{"placeholder absent", "FIXED", 9, 4, "FIXED"},
		{"each placeholder once", "{{{id}}}-{{{id}}}", 3, 0, "3-{{{id}}}"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FormatNumber(tc.format, tc.seq, tc.leftPad, now))
		})
	}
}

func TestGenerateNumberPure(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	ns := NumberSeries{IdentifierFormat: "INV-{{{year}}}-{{{id}}}", NextID: 7, LeftPad: 4}

	first := GenerateNumber(ns, now)
	second := GenerateNumber(ns, now)

	require.Equal(t, "INV-2025-0007", first)
	require.Equal(t, first, second)
	require.Equal(t, int64(7), ns.NextID)
}

func TestDocumentTypeAccepts(t *testing.T) {
	require.True(t, DocTypeBoth.Accepts(DocTypeInvoice))
	require.True(t, DocTypeBoth.Accepts(DocTypeQuotation))
	require.True(t, DocTypeInvoice.Accepts(DocTypeInvoice))
	require.False(t, DocTypeInvoice.Accepts(DocTypeQuotation))
	require.False(t, DocTypeQuotation.Accepts(DocTypeInvoice))
}
