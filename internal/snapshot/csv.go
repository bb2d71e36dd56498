package snapshot

import (
	"strings"

	"github.com/shopspring/decimal"

	"holdersnap/internal/domain"
)

// CSVFilename is the attachment name used for exported holder lists.
const CSVFilename = "holderList.csv"

// csvHeader is the fixed two-column header of every export.
const csvHeader = "Address,Quantity"

// FormatQuantity renders q for display. In integer mode the fractional part
// is dropped toward zero. Whole values render without a fractional part in
// either mode; the exact value is otherwise printed as stored.
func FormatQuantity(q decimal.Decimal, integerMode bool) string {
	if integerMode || q.IsInteger() {
		return q.Truncate(0).String()
	}
	return q.String()
}

// RenderCSV serialises records as a two-column CSV document. Addresses and
// decimal quantities never contain separators, so fields are written without
// quoting.
func RenderCSV(records []domain.HolderRecord, integerMode bool) string {
	var b strings.Builder
	b.Grow(len(csvHeader) + 1 + len(records)*48)

	b.WriteString(csvHeader)
	b.WriteByte('\n')
	for _, r := range records {
		b.WriteString(r.Address)
		b.WriteByte(',')
		b.WriteString(FormatQuantity(r.Quantity, integerMode))
		b.WriteByte('\n')
	}
	return b.String()
}
