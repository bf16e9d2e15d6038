package odds

const minDecimal = 1.0

// Implied returns the raw implied probability of a decimal price,
// overround included.
func Implied(dec float64) float64 {
	if dec < minDecimal {
		return 0
	}
	return 1.0 / dec
}

// FairProbabilities converts a full market of decimal prices to fair
// probabilities by stripping the bookmaker's overround. The result sums
// to 1. Returns nil when any price is invalid, since a partial market
// cannot be normalized.
func FairProbabilities(decs ...float64) []float64 {
	if len(decs) == 0 {
		return nil
	}
	total := 0.0
	raw := make([]float64, len(decs))
	for i, d := range decs {
		if d < minDecimal {
			return nil
		}
		raw[i] = 1.0 / d
		total += raw[i]
	}
	for i := range raw {
		raw[i] /= total
	}
	return raw
}

// Overround returns the bookmaker margin baked into a market's prices:
// the sum of implied probabilities minus 1. Zero for a fair book.
func Overround(decs ...float64) float64 {
	total := 0.0
	for _, d := range decs {
		if d < minDecimal {
			return 0
		}
		total += 1.0 / d
	}
	return total - 1.0
}
