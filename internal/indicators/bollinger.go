package indicators

import "math"

// Bollinger returns the upper band, lower band, and the current price's
// position within the bands clamped to [0, 1]. Uses a 20-period SMA with
// 2 standard deviations. With insufficient history both bands collapse to
// the last price and the position is 0.5.
func Bollinger(prices []float64) (upper, lower, position float64) {
	return bollinger(prices, 20, 2.0)
}

func bollinger(prices []float64, period int, stdDev float64) (upper, lower, position float64) {
	if len(prices) == 0 {
		return 0, 0, 0.5
	}
	if len(prices) < period {
		last := prices[len(prices)-1]
		return last, last, 0.5
	}

	window := prices[len(prices)-period:]

	var sum float64
	for _, p := range window {
		sum += p
	}
	sma := sum / float64(period)

	var variance float64
	for _, p := range window {
		d := p - sma
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))

	upper = sma + std*stdDev
	lower = sma - std*stdDev

	current := prices[len(prices)-1]
	if upper == lower {
		position = 0.5
	} else {
		position = (current - lower) / (upper - lower)
	}
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}

	return upper, lower, position
}
