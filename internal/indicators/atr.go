package indicators

import "math"

// ATR returns the Average True Range as the simple mean of the last `period`
// true ranges. Returns 0 with insufficient history.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) < period+1 {
		return 0
	}

	trs := trueRanges(highs, lows, closes)
	window := trs[len(trs)-period:]

	var sum float64
	for _, tr := range window {
		sum += tr
	}
	return sum / float64(period)
}

// ATRPercentile returns the percentage of historical ATR values below the
// current ATR. Returns 50 with no history.
func ATRPercentile(currentATR float64, history []float64) float64 {
	if len(history) == 0 {
		return 50.0
	}

	below := 0
	for _, atr := range history {
		if atr < currentATR {
			below++
		}
	}
	return float64(below) / float64(len(history)) * 100
}

func trueRanges(highs, lows, closes []float64) []float64 {
	trs := make([]float64, 0, len(highs)-1)
	for i := 1; i < len(highs); i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		trs = append(trs, tr)
	}
	return trs
}
