// Package money provides exact monetary arithmetic in integer minor units.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Amount is a monetary value expressed in the smallest currency unit.
type Amount int64

// MinorDigits returns the number of minor-unit digits for an ISO 4217 code.
// Unknown codes fall back to two digits.
func MinorDigits(code string) int {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	if scale < 0 {
		return 2
	}
	return scale
}

// FromDecimal converts a decimal value to minor units using banker's rounding.
func FromDecimal(d decimal.Decimal, digits int) Amount {
	shifted := d.Shift(int32(digits)).RoundBank(0)
	return Amount(shifted.IntPart())
}

// Decimal converts the amount back to a major-unit decimal.
func (a Amount) Decimal(digits int) decimal.Decimal {
	return decimal.New(int64(a), 0).Shift(int32(-digits))
}

// String renders the amount with two minor digits, for logs and memos.
func (a Amount) String() string {
	return a.Decimal(2).StringFixed(2)
}

// ParseDecimal parses a required decimal string.
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("money: value required")
	}
	return decimal.NewFromString(s)
}

// ParsePercent parses an optional percentage string. Empty means zero; the
// value must lie in [0, 100].
func ParsePercent(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.Sign() < 0 || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("money: percentage %s out of range", s)
	}
	return d, nil
}

// LineTotals computes the discount, net and tax amounts for a document line.
// Each component is rounded to minor units at the line level.
func LineTotals(qty, unitPrice, discountPct, taxPct decimal.Decimal, digits int) (discount, net, tax Amount) {
	gross := qty.Mul(unitPrice)
	discountDec := gross.Mul(discountPct).Div(decimal.NewFromInt(100))
	netDec := gross.Sub(discountDec)
	taxDec := netDec.Mul(taxPct).Div(decimal.NewFromInt(100))

	discount = FromDecimal(discountDec, digits)
	net = FromDecimal(netDec, digits)
	tax = FromDecimal(taxDec, digits)
	return discount, net, tax
}

// LineExact reports the unrounded decimal totals for a line, used to detect
// rounding residue across a whole document.
func LineExact(qty, unitPrice, discountPct, taxPct decimal.Decimal) (net, tax decimal.Decimal) {
	gross := qty.Mul(unitPrice)
	net = gross.Sub(gross.Mul(discountPct).Div(decimal.NewFromInt(100)))
	tax = net.Mul(taxPct).Div(decimal.NewFromInt(100))
	return net, tax
}
