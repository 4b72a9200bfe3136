// Package money provides fixed-point integer-cent arithmetic for cash,
// fees, taxes, and transaction totals, per the engine's "no float money"
// invariant.
package money

import (
	"fmt"
	"math"
)

// Cents represents a monetary amount as an integer number of cents.
// Using int64 keeps ~92 trillion dollars of headroom, far beyond anything
// a single-player portfolio needs.
type Cents int64

// Zero is the additive identity.
const Zero Cents = 0

// FromFloat rounds a floating-point dollar amount to the nearest cent.
func FromFloat(dollars float64) Cents {
	return Cents(math.Round(math.Round(dollars*1e6) / 1e4))
}

// ToFloat returns the dollar value as a float64, for display or for price
// arithmetic that is inherently floating-point (e.g. per-share prices).
func (c Cents) ToFloat() float64 {
	return float64(c) / 100
}

// Add returns c + other.
func (c Cents) Add(other Cents) Cents { return c + other }

// Sub returns c - other.
func (c Cents) Sub(other Cents) Cents { return c - other }

// Mul scales c by a dimensionless factor (e.g. a tax rate), rounding to the
// nearest cent.
func (c Cents) Mul(factor float64) Cents {
	return Cents(math.Round(float64(c) * factor))
}

// Neg returns -c.
func (c Cents) Neg() Cents { return -c }

// IsNegative reports whether c < 0.
func (c Cents) IsNegative() bool { return c < 0 }

// String renders the amount as "$1,234.56".
func (c Cents) String() string {
	neg := c < 0
	v := int64(c)
	if neg {
		v = -v
	}
	dollars := v / 100
	cents := v % 100
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%02d", sign, groupThousands(dollars), cents)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	rem := len(s) % 3
	if rem == 0 {
		rem = 3
	}
	out = append(out, s[:rem]...)
	for i := rem; i < len(s); i += 3 {
		out = append(out, ',')
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}

// FromShares computes the fixed-point cash value of qty shares at a
// floating-point per-share price.
func FromShares(qty float64, pricePerShare float64) Cents {
	return FromFloat(qty * pricePerShare)
}
