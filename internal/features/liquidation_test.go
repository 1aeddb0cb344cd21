package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLiquidationDensity(t *testing.T) {
	levels := []LiquidationLevel{
		{Price: 99.5, Volume: 5_000_000, Side: "long"},   // within 1% below
		{Price: 98.5, Volume: 3_000_000, Side: "long"},   // within 2% below
		{Price: 95.0, Volume: 9_000_000, Side: "long"},   // outside 2%
		{Price: 100.5, Volume: 2_000_000, Side: "short"}, // within 1% above
	}

	assert.InDelta(t, 5_000_000, density(levels, 100, "long", 0.01), 1e-6)
	assert.InDelta(t, 8_000_000, density(levels, 100, "long", 0.02), 1e-6)
	assert.InDelta(t, 2_000_000, density(levels, 100, "short", 0.01), 1e-6)
	assert.Equal(t, 0.0, density(nil, 100, "long", 0.01))
}

func TestLiquidationNearestZone(t *testing.T) {
	levels := []LiquidationLevel{
		{Price: 99, Volume: 2_000_000, Side: "long"},
		{Price: 97, Volume: 8_000_000, Side: "long"},
		{Price: 102, Volume: 1_500_000, Side: "short"},
		{Price: 101, Volume: 500_000, Side: "short"}, // below significance
	}

	assert.InDelta(t, 0.01, nearestZone(levels, 100, "long"), 1e-9)
	assert.InDelta(t, 0.02, nearestZone(levels, 100, "short"), 1e-9)

	// No significant zone on a side falls back to 10%
	insignificant := []LiquidationLevel{{Price: 99, Volume: 100, Side: "long"}}
	assert.Equal(t, 0.1, nearestZone(insignificant, 100, "long"))
}

func TestLiquidationImbalance(t *testing.T) {
	levels := []LiquidationLevel{
		{Price: 99, Volume: 3_000_000, Side: "long"},
		{Price: 101, Volume: 1_000_000, Side: "short"},
	}
	assert.InDelta(t, 0.5, imbalance(levels), 1e-9)
	assert.Equal(t, 0.0, imbalance(nil))
}

func TestLiquidationCascadeRisk(t *testing.T) {
	tests := []struct {
		name     string
		features LiquidationFeatures
		expected float64
	}{
		{
			name:     "calm",
			features: LiquidationFeatures{DistanceToLongLiq: 0.05, DistanceToShortLiq: 0.05},
			expected: 0,
		},
		{
			name: "dense both sides and close zones",
			features: LiquidationFeatures{
				LongLiqDensity1Pct:  20_000_000,
				ShortLiqDensity1Pct: 20_000_000,
				DistanceToLongLiq:   0.005,
				DistanceToShortLiq:  0.005,
			},
			expected: 1.0, // 0.2+0.2+0.3+0.3 capped
		},
		{
			name: "moderate proximity",
			features: LiquidationFeatures{
				DistanceToLongLiq:  0.015,
				DistanceToShortLiq: 0.05,
			},
			expected: 0.15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, cascadeRisk(&tt.features), 1e-9)
		})
	}
}

func TestLiquidationSyntheticRanges(t *testing.T) {
	p := NewLiquidationProvider("", 5*time.Minute)
	assert.True(t, p.Degraded())

	f := p.Calculate(context.Background(), 100000)

	assert.GreaterOrEqual(t, f.LongLiqDensity1Pct, 1_000_000.0)
	assert.GreaterOrEqual(t, f.LongLiqDensity2Pct, f.LongLiqDensity1Pct)
	assert.GreaterOrEqual(t, f.ShortLiqDensity2Pct, f.ShortLiqDensity1Pct)
	assert.GreaterOrEqual(t, f.LiqImbalance, -1.0)
	assert.LessOrEqual(t, f.LiqImbalance, 1.0)
	assert.GreaterOrEqual(t, f.LiqCascadeRisk, 0.0)
	assert.LessOrEqual(t, f.LiqCascadeRisk, 1.0)
}
