package indicators

// Stochastic returns %K and %D for a 14/3 stochastic oscillator. %D is the
// simple mean of %K over the last 3 bars. Returns 50/50 with insufficient
// history or a flat window.
func Stochastic(highs, lows, closes []float64) (k, d float64) {
	return stochastic(highs, lows, closes, 14, 3)
}

func stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d float64) {
	if len(closes) < kPeriod {
		return 50.0, 50.0
	}

	k = stochK(highs, lows, closes, len(closes)-1, kPeriod)

	var kValues []float64
	start := len(closes) - dPeriod
	if start < 0 {
		start = 0
	}
	for i := start; i < len(closes); i++ {
		kValues = append(kValues, stochK(highs, lows, closes, i, kPeriod))
	}

	if len(kValues) == 0 {
		return k, k
	}
	return k, mean(kValues)
}

func stochK(highs, lows, closes []float64, i, period int) float64 {
	start := i - period + 1
	if start < 0 {
		start = 0
	}

	hh := highs[start]
	ll := lows[start]
	for j := start + 1; j <= i; j++ {
		if highs[j] > hh {
			hh = highs[j]
		}
		if lows[j] < ll {
			ll = lows[j]
		}
	}

	if hh == ll {
		return 50.0
	}
	return 100 * (closes[i] - ll) / (hh - ll)
}
