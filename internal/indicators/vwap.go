package indicators

// VWAP returns the volume weighted average price. Falls back to the last
// price when volumes are missing, mismatched, or sum to zero.
func VWAP(prices, volumes []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(volumes) == 0 || len(prices) != len(volumes) {
		return prices[len(prices)-1]
	}

	var totalVolume, weighted float64
	for i, p := range prices {
		totalVolume += volumes[i]
		weighted += p * volumes[i]
	}

	if totalVolume == 0 {
		return prices[len(prices)-1]
	}
	return weighted / totalVolume
}
