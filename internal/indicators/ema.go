// Package indicators provides the technical indicator math used by the
// feature engine. Functions operate on plain price slices, oldest first,
// and return neutral sentinel values when there is not enough history.
package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// EMA returns the latest exponential moving average over the given period.
// The average is seeded from the first price. With fewer prices than the
// period, the last price is returned.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		return prices[len(prices)-1]
	}

	in := make(chan float64, len(prices))
	for _, p := range prices {
		in <- p
	}
	close(in)

	ema := trend.NewEmaWithPeriod[float64](period)

	var last float64
	for v := range ema.Compute(in) {
		last = v
	}
	return last
}
