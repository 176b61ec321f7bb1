// Package report formats valuations and trade history for people: USD
// amounts, markdown tables, CSV export and terminal rendering.
package report

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// USD formats d as dollars and cents, e.g. "$1,234.56". Sub-cent amounts
// are rounded half away from zero.
func USD(d decimal.Decimal) string {
	return Currency(d, money.USD)
}

// Currency formats d in the ISO 4217 currency code. Unknown codes fall back
// to the plain decimal with two places.
func Currency(d decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return d.StringFixed(2)
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}
