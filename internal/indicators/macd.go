package indicators

// MACD returns the MACD line, signal line and histogram using 12/26/9
// periods. The signal line is an EMA over the MACD values of the last 50
// bars. Returns zeros with fewer prices than the slow period.
func MACD(prices []float64) (line, signal, histogram float64) {
	return macd(prices, 12, 26, 9)
}

func macd(prices []float64, fast, slow, signalPeriod int) (line, signal, histogram float64) {
	if len(prices) < slow {
		return 0, 0, 0
	}

	line = EMA(prices, fast) - EMA(prices, slow)

	start := len(prices) - 50
	if start < slow {
		start = slow
	}

	var history []float64
	for i := start; i < len(prices); i++ {
		prefix := prices[:i+1]
		history = append(history, EMA(prefix, fast)-EMA(prefix, slow))
	}

	if len(history) >= signalPeriod {
		signal = EMA(history, signalPeriod)
	} else {
		signal = line
	}

	histogram = line - signal
	return line, signal, histogram
}
