package indicators

import "math"

// ADX returns the directional index (unsmoothed DX) along with +DI and -DI
// over the given period. Returns zeros with insufficient history or a flat
// market.
func ADX(highs, lows, closes []float64, period int) (adx, plusDI, minusDI float64) {
	if len(highs) < period+1 {
		return 0, 0, 0
	}

	trs := trueRanges(highs, lows, closes)
	plusDM := make([]float64, 0, len(highs)-1)
	minusDM := make([]float64, 0, len(highs)-1)

	for i := 1; i < len(highs); i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]

		if upMove > downMove && upMove > 0 {
			plusDM = append(plusDM, upMove)
		} else {
			plusDM = append(plusDM, 0)
		}

		if downMove > upMove && downMove > 0 {
			minusDM = append(minusDM, downMove)
		} else {
			minusDM = append(minusDM, 0)
		}
	}

	if len(trs) < period {
		return 0, 0, 0
	}

	atr := mean(trs[len(trs)-period:])
	smoothedPlusDM := mean(plusDM[len(plusDM)-period:])
	smoothedMinusDM := mean(minusDM[len(minusDM)-period:])

	if atr == 0 {
		return 0, 0, 0
	}

	plusDI = 100 * smoothedPlusDM / atr
	minusDI = 100 * smoothedMinusDM / atr

	diSum := plusDI + minusDI
	if diSum == 0 {
		return 0, plusDI, minusDI
	}

	adx = 100 * math.Abs(plusDI-minusDI) / diSum
	return adx, plusDI, minusDI
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
