package money

import (
	"fmt"
	"math"
)

// Cents is a single-currency amount in integer cents. All ledger arithmetic
// happens on cents so that fee splits are exact; rendering adds the decimal
// point at the edge.
type Cents int64

// FromFloat converts a two-fraction-digit decimal amount to cents using
// half-up rounding.
func FromFloat(amount float64) Cents {
	return Cents(math.Round(amount * 100))
}

// Float64 returns the amount as a decimal number of currency units.
func (c Cents) Float64() float64 {
	return float64(c) / 100
}

// String renders the amount with exactly two fraction digits.
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// SplitFee splits amount into a platform fee and the expert payout for the
// given fee percent. The fee is rounded to the nearest cent (half up) and the
// payout is the exact remainder, so fee+payout always equals amount. The fee
// percent is resolved to hundredths of a percent before the split so the
// computation stays in integer arithmetic.
func SplitFee(amount Cents, feePercent float64) (fee, payout Cents) {
	bps := int64(math.Round(feePercent * 100))
	fee = Cents((int64(amount)*bps + 5000) / 10000)
	return fee, amount - fee
}
