package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func equalWeights(losses []float64) []WeightedSample {
	samples := make([]WeightedSample, len(losses))
	for i, l := range losses {
		samples[i] = WeightedSample{Loss: l, Weight: 1}
	}
	return samples
}

func TestWeightedQuantile(t *testing.T) {
	tests := []struct {
		name      string
		samples   []WeightedSample
		q         float64
		want      float64
		tolerance float64
	}{
		{
			name:      "95th percentile of 1..100",
			samples:   equalWeights(seq(1, 100)),
			q:         0.95,
			want:      95,
			tolerance: 1e-12,
		},
		{
			name:      "median of 1..100",
			samples:   equalWeights(seq(1, 100)),
			q:         0.5,
			want:      50,
			tolerance: 1e-12,
		},
		{
			name: "weights shift the quantile",
			samples: []WeightedSample{
				{Loss: 1, Weight: 9},
				{Loss: 2, Weight: 1},
			},
			q:         0.9,
			want:      1,
			tolerance: 1e-12,
		},
		{
			name: "heavy tail weight pulls quantile up",
			samples: []WeightedSample{
				{Loss: 1, Weight: 1},
				{Loss: 2, Weight: 9},
			},
			q:         0.5,
			want:      2,
			tolerance: 1e-12,
		},
		{
			name:      "q at or above one returns max",
			samples:   equalWeights([]float64{1, 2, 3}),
			q:         1.0,
			want:      3,
			tolerance: 1e-12,
		},
		{
			name:      "q at or below zero returns min",
			samples:   equalWeights([]float64{1, 2, 3}),
			q:         0,
			want:      1,
			tolerance: 1e-12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sorted := SortByLoss(tt.samples)
			got := WeightedQuantile(sorted, tt.q)
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}

func TestWeightedQuantileMonotone(t *testing.T) {
	sorted := SortByLoss(equalWeights(seq(1, 1000)))
	prev := WeightedQuantile(sorted, 0.01)
	for _, q := range []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99} {
		cur := WeightedQuantile(sorted, q)
		assert.LessOrEqual(t, prev, cur, "quantile must be monotone in q")
		prev = cur
	}
}

func TestWeightedTailMean(t *testing.T) {
	sorted := SortByLoss(equalWeights(seq(1, 100)))

	// Tail beyond the 95th percentile of 1..100 is {95..100}.
	got := WeightedTailMean(sorted, 95)
	assert.InDelta(t, 97.5, got, 1e-12)

	// Tail mean is never below its threshold.
	for _, threshold := range []float64{10, 50, 99, 100} {
		assert.GreaterOrEqual(t, WeightedTailMean(sorted, threshold), threshold)
	}
}

func TestEffectiveSampleSize(t *testing.T) {
	tests := []struct {
		name      string
		weights   []float64
		want      float64
		tolerance float64
	}{
		{
			name:      "equal weights give raw count",
			weights:   []float64{1, 1, 1, 1},
			want:      4,
			tolerance: 1e-12,
		},
		{
			name:      "scaling weights does not change ESS",
			weights:   []float64{0.2, 0.2, 0.2, 0.2},
			want:      4,
			tolerance: 1e-12,
		},
		{
			name:      "one dominant weight collapses ESS towards one",
			weights:   []float64{100, 0.001, 0.001},
			want:      1,
			tolerance: 0.01,
		},
		{
			name:      "empty weights",
			weights:   nil,
			want:      0,
			tolerance: 1e-12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EffectiveSampleSize(tt.weights), tt.tolerance)
		})
	}
}

func TestRealizedVolatility(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility(nil))
	assert.Equal(t, 0.0, RealizedVolatility([]float64{1}))
	assert.Equal(t, 0.0, RealizedVolatility([]float64{2, 2, 2}))
	assert.InDelta(t, 1.0, RealizedVolatility([]float64{1, 2, 3}), 1e-12)
}

func TestStdErr(t *testing.T) {
	assert.Equal(t, 0.0, StdErr(nil))
	assert.Equal(t, 0.0, StdErr([]float64{1}))
	// stddev of {1,2,3} is 1; three batches give 1/sqrt(3).
	assert.InDelta(t, 0.57735, StdErr([]float64{1, 2, 3}), 1e-4)
}

func seq(from, to int) []float64 {
	out := make([]float64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, float64(i))
	}
	return out
}
