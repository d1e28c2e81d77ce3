// Package aggregation merges priced path outcomes into an empirical loss
// distribution and derives VaR / Expected Shortfall with confidence
// intervals. Larger loss values are worse; VaR at confidence c is the c-th
// weighted percentile of the merged sample.
package aggregation

import (
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/riskengine/internal/domain"
	"github.com/aristath/riskengine/pkg/formulas"
)

const (
	// DefaultBatchCount is the number of sub-batches per stratum used for
	// the normal-approximation interval when the config leaves it unset.
	DefaultBatchCount = 20

	// intervalCoverage is the two-sided coverage of the reported intervals.
	intervalCoverage = 0.95
)

// StratumSample is the priced outcome of one stratum: loss values in
// generation order plus the stratum's importance-sampling reweighting factor
// (probability weight over sampling weight).
type StratumSample struct {
	StratumID int
	Weight    float64
	Losses    []float64
}

// Aggregator computes risk metrics from priced, reweighted loss samples.
type Aggregator struct {
	batchCount   int
	minEffective float64
	log          zerolog.Logger
}

// New creates an aggregator. batchCount <= 0 selects DefaultBatchCount;
// minEffective <= 0 disables the effective-sample-size floor.
func New(batchCount int, minEffective float64, log zerolog.Logger) *Aggregator {
	if batchCount <= 0 {
		batchCount = DefaultBatchCount
	}
	return &Aggregator{
		batchCount:   batchCount,
		minEffective: minEffective,
		log:          log.With().Str("component", "risk_aggregator").Logger(),
	}
}

// Aggregate merges the per-stratum samples in (stratum id, draw index) order,
// computes the weighted VaR and ES at each confidence level, and estimates
// standard errors by sub-batching. The input order within each stratum is the
// deterministic generation order guaranteed by the coordinator, so repeated
// runs sum in the same order bit for bit.
func (a *Aggregator) Aggregate(samples []StratumSample, confidences []float64) (*domain.SimulationResult, error) {
	if len(confidences) == 0 {
		return nil, &domain.ConfigurationError{Field: "confidence_levels", Reason: "at least one confidence level required"}
	}
	for _, c := range confidences {
		if c <= 0 || c >= 1 {
			return nil, &domain.ConfigurationError{Field: "confidence_levels", Reason: "levels must lie in (0, 1)"}
		}
	}

	ordered := make([]StratumSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StratumID < ordered[j].StratumID })

	var flat []formulas.WeightedSample
	var weights []float64
	for _, s := range ordered {
		for _, loss := range s.Losses {
			flat = append(flat, formulas.WeightedSample{Loss: loss, Weight: s.Weight})
			weights = append(weights, s.Weight)
		}
	}

	effective := formulas.EffectiveSampleSize(weights)
	if len(flat) == 0 || (a.minEffective > 0 && effective < a.minEffective) {
		return nil, &domain.InsufficientSampleError{Effective: effective, Minimum: a.minEffective}
	}

	sorted := formulas.SortByLoss(flat)
	sortedLosses := make([]float64, len(sorted))
	for i, s := range sorted {
		sortedLosses[i] = s.Loss
	}

	batches := a.splitBatches(ordered)

	metrics := make([]domain.RiskMetric, 0, len(confidences))
	batchStats := make(map[string][]domain.BatchStatistic, len(confidences))
	z := distuv.UnitNormal.Quantile(0.5 + intervalCoverage/2)

	for _, c := range confidences {
		pointVaR := formulas.WeightedQuantile(sorted, c)
		pointES := formulas.WeightedTailMean(sorted, pointVaR)

		var batchVaRs, batchESs []float64
		stats := make([]domain.BatchStatistic, 0, len(batches))
		for b, batch := range batches {
			if len(batch) == 0 {
				continue
			}
			bs := formulas.SortByLoss(batch)
			bv := formulas.WeightedQuantile(bs, c)
			be := formulas.WeightedTailMean(bs, bv)
			batchVaRs = append(batchVaRs, bv)
			batchESs = append(batchESs, be)
			stats = append(stats, domain.BatchStatistic{Batch: b, VaR: bv, ES: be})
		}
		batchStats[strconv.FormatFloat(c, 'g', -1, 64)] = stats

		varErr := formulas.StdErr(batchVaRs)
		esErr := formulas.StdErr(batchESs)
		metrics = append(metrics, domain.RiskMetric{
			Confidence:  c,
			VaR:         pointVaR,
			ES:          pointES,
			VaRStdErr:   varErr,
			ESStdErr:    esErr,
			VaRInterval: [2]float64{pointVaR - z*varErr, pointVaR + z*varErr},
			ESInterval:  [2]float64{pointES - z*esErr, pointES + z*esErr},
		})
	}

	// Standard error of the mean loss, from the same sub-batches.
	var batchMeans []float64
	for _, batch := range batches {
		if len(batch) > 0 {
			batchMeans = append(batchMeans, formulas.WeightedMean(batch))
		}
	}

	a.log.Debug().
		Int("paths", len(flat)).
		Float64("effective_sample_size", effective).
		Int("batches", len(batchMeans)).
		Msg("Aggregated loss distribution")

	return &domain.SimulationResult{
		TotalPaths:   len(flat),
		SortedLosses: sortedLosses,
		Metrics:      metrics,
		Diagnostics: domain.Diagnostics{
			StandardError:       formulas.StdErr(batchMeans),
			EffectiveSampleSize: effective,
			BatchCount:          len(batchMeans),
			BatchStatistics:     batchStats,
		},
	}, nil
}

// splitBatches assigns each stratum's losses to sub-batches by striding over
// the draw index, so every batch sees every stratum in proportion and the
// assignment is a pure function of (stratum id, draw index).
func (a *Aggregator) splitBatches(ordered []StratumSample) [][]formulas.WeightedSample {
	batches := make([][]formulas.WeightedSample, a.batchCount)
	for _, s := range ordered {
		for i, loss := range s.Losses {
			b := i % a.batchCount
			batches[b] = append(batches[b], formulas.WeightedSample{Loss: loss, Weight: s.Weight})
		}
	}
	return batches
}
