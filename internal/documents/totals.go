package documents

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-ledger/internal/money"
)

// ComputeTotals recomputes every line's rounded amounts and the header
// totals from the line quantities and rates. Line amounts use banker's
// rounding at the line level; any residual against the exactly-rounded
// document total is assigned to the last line so the header always equals
// the sum of its lines.
func ComputeTotals(doc *Document) {
	digits := money.MinorDigits(doc.Currency)

	var subtotal, discount, tax money.Amount
	exactNet := decimal.Zero
	exactTax := decimal.Zero
	for i := range doc.Lines {
		line := &doc.Lines[i]
		line.Discount, line.Net, line.Tax = money.LineTotals(line.Quantity, line.UnitPrice, line.DiscountPct, line.TaxPct, digits)
		subtotal += line.Net
		discount += line.Discount
		tax += line.Tax

		n, t := money.LineExact(line.Quantity, line.UnitPrice, line.DiscountPct, line.TaxPct)
		exactNet = exactNet.Add(n)
		exactTax = exactTax.Add(t)
	}

	if len(doc.Lines) > 0 {
		last := &doc.Lines[len(doc.Lines)-1]
		if residual := money.FromDecimal(exactNet, digits) - subtotal; residual != 0 {
			last.Net += residual
			subtotal += residual
		}
		if residual := money.FromDecimal(exactTax, digits) - tax; residual != 0 {
			last.Tax += residual
			tax += residual
		}
	}

	doc.Subtotal = subtotal
	doc.Discount = discount
	doc.Tax = tax
	doc.GrandTotal = subtotal + tax
}
