package ledger

import "github.com/shopspring/decimal"

// AvgPriceScale is the number of decimal places kept for average entry prices.
const AvgPriceScale int32 = 8

var two = decimal.NewFromInt(2)

// divHalfEven divides num by a positive integer and rounds half-to-even at the given
// number of decimal places. The division is exact up to the rounding step.
func divHalfEven(num decimal.Decimal, den int64, places int32) decimal.Decimal {
	d := decimal.NewFromInt(den)
	q, r := num.QuoRem(d, places)
	if r.IsZero() {
		return q
	}

	unit := decimal.New(1, -places)
	if num.IsNegative() {
		unit = unit.Neg()
	}

	// q is truncated toward zero; r carries the sign of num.
	cmp := r.Abs().Mul(two).Cmp(d.Mul(unit.Abs()))
	if cmp > 0 || (cmp == 0 && isOddAt(q, places)) {
		return q.Add(unit)
	}
	return q
}

func isOddAt(q decimal.Decimal, places int32) bool {
	return !q.Shift(places).Mod(two).IsZero()
}
