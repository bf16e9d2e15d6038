// Package odds converts vendor price encodings to decimal odds.
//
// All prices are held internally as decimal odds (>= 1.0). Vendors send
// one of three encodings: American integers (-150, +130), decimal floats,
// or scaled integers that must be divided by a fixed factor.
//
// Rounding is half-to-even and done in integer arithmetic so that ties
// (e.g. a raw Kambi price of 1005) are deterministic instead of depending
// on the nearest float64.
package odds

import (
	"errors"
	"fmt"
	"math"
)

// DefaultScale is the scale factor used by Kambi-style feeds, which
// transmit both odds and handicap lines in thousandths.
const DefaultScale = 1000

// ErrMalformedPrice marks a price that cannot represent a valid bet:
// an American price of 0, a zero scale divisor, or a decimal below 1.0.
var ErrMalformedPrice = errors.New("malformed price")

// AmericanToDecimal converts an American price to decimal odds,
// rounded to 2 decimal places.
//
//	+150 -> 2.50
//	-150 -> 1.67
func AmericanToDecimal(price int) (float64, error) {
	if price == 0 {
		return 0, fmt.Errorf("american price 0: %w", ErrMalformedPrice)
	}
	if price > 0 {
		// price/100 + 1 is exact in cents: no rounding needed.
		return float64(price+100) / 100, nil
	}
	cents := divRoundHalfEven(10000, -price)
	return float64(cents+100) / 100, nil
}

// ScaledToDecimal converts a scaled-integer price (raw/scale) to decimal
// odds rounded to 2 decimal places.
func ScaledToDecimal(raw, scale int) (float64, error) {
	if scale == 0 {
		return 0, fmt.Errorf("zero scale: %w", ErrMalformedPrice)
	}
	return float64(divRoundHalfEven(raw*100, scale)) / 100, nil
}

// ScaledToLine converts a scaled-integer handicap/total line to a decimal
// value rounded to 1 place. Lines use coarser precision than prices.
func ScaledToLine(raw, scale int) (float64, error) {
	if scale == 0 {
		return 0, fmt.Errorf("zero scale: %w", ErrMalformedPrice)
	}
	return float64(divRoundHalfEven(raw*10, scale)) / 10, nil
}

// CheckDecimal validates a decimal price already in its final form.
// Anything below 1.0 is a parse error upstream, not a valid bet.
func CheckDecimal(dec float64) (float64, error) {
	if dec < 1.0 || math.IsNaN(dec) || math.IsInf(dec, 0) {
		return 0, fmt.Errorf("decimal price %v: %w", dec, ErrMalformedPrice)
	}
	return math.RoundToEven(dec*100) / 100, nil
}

// divRoundHalfEven divides n by d, rounding the quotient to the nearest
// integer with ties going to the even neighbour. d must be positive.
func divRoundHalfEven(n, d int) int {
	neg := n < 0
	if neg {
		n = -n
	}
	q, r := n/d, n%d
	switch {
	case 2*r > d:
		q++
	case 2*r == d && q%2 == 1:
		q++
	}
	if neg {
		q = -q
	}
	return q
}
