package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WeightedSample is a loss observation paired with its importance-sampling
// reweighting factor. Weights need not be normalized; every consumer
// normalizes by the total weight of the sample it operates on.
type WeightedSample struct {
	Loss   float64
	Weight float64
}

// SortByLoss returns a copy of the sample sorted by ascending loss.
// Ties keep their original relative order so that repeated runs over
// identical inputs produce identical orderings.
func SortByLoss(samples []WeightedSample) []WeightedSample {
	sorted := make([]WeightedSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Loss < sorted[j].Loss
	})
	return sorted
}

// WeightedQuantile computes the weighted empirical quantile of a sample that
// is already sorted by ascending loss. The quantile is the smallest loss
// whose cumulative normalized weight reaches q.
//
// Returns the worst (largest) loss when q >= 1 and the best when q <= 0.
func WeightedQuantile(sorted []WeightedSample, q float64) float64 {
	if len(sorted) == 0 {
		return 0.0
	}
	if q <= 0 {
		return sorted[0].Loss
	}
	if q >= 1 {
		return sorted[len(sorted)-1].Loss
	}

	total := 0.0
	for _, s := range sorted {
		total += s.Weight
	}
	if total <= 0 {
		return 0.0
	}

	cumulative := 0.0
	for _, s := range sorted {
		cumulative += s.Weight
		if cumulative/total >= q {
			return s.Loss
		}
	}
	return sorted[len(sorted)-1].Loss
}

// WeightedTailMean computes the weighted mean of all losses at or beyond the
// threshold, over a sample sorted by ascending loss. This is the Expected
// Shortfall integrand: the average loss conditional on exceeding VaR.
func WeightedTailMean(sorted []WeightedSample, threshold float64) float64 {
	var sum, weight float64
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Loss < threshold {
			break
		}
		sum += sorted[i].Loss * sorted[i].Weight
		weight += sorted[i].Weight
	}
	if weight <= 0 {
		return threshold
	}
	return sum / weight
}

// WeightedMean computes the weighted mean of the sample.
func WeightedMean(samples []WeightedSample) float64 {
	var sum, weight float64
	for _, s := range samples {
		sum += s.Loss * s.Weight
		weight += s.Weight
	}
	if weight <= 0 {
		return 0.0
	}
	return sum / weight
}

// EffectiveSampleSize returns the Kish effective sample size of a weighted
// sample: (sum w)^2 / sum(w^2). Equal weights give back the raw count;
// importance-sampling reweighting with high weight variance shrinks it.
func EffectiveSampleSize(weights []float64) float64 {
	var sum, sumSq float64
	for _, w := range weights {
		sum += w
		sumSq += w * w
	}
	if sumSq <= 0 {
		return 0.0
	}
	return (sum * sum) / sumSq
}

// RealizedVolatility computes the sample standard deviation of a window of
// increments. Used by regime triggers; windows shorter than two observations
// have no dispersion and return 0.
func RealizedVolatility(window []float64) float64 {
	if len(window) < 2 {
		return 0.0
	}
	return stat.StdDev(window, nil)
}

// SampleCorrelation computes the Pearson correlation of two equal-length
// series. Returns 0 for degenerate inputs.
func SampleCorrelation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0.0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0.0
	}
	return r
}

// StdErr computes the standard error of a set of batch estimates:
// stddev(batches) / sqrt(len(batches)).
func StdErr(batchEstimates []float64) float64 {
	n := len(batchEstimates)
	if n < 2 {
		return 0.0
	}
	return stat.StdDev(batchEstimates, nil) / math.Sqrt(float64(n))
}
