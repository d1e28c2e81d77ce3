// Package strata partitions a Monte Carlo run into sampling strata and
// allocates per-stratum path counts so the total is hit exactly.
package strata

import (
	"math"
	"sort"

	"github.com/aristath/riskengine/internal/domain"
)

// WeightTolerance is how far a weight vector may drift from summing to 1.0
// before the definitions are rejected.
const WeightTolerance = 1e-6

// Definition describes one stratum before allocation. SamplingWeight is the
// share of draws taken from the stratum; ProbabilityWeight is its true
// probability mass, used for unbiased aggregation. Leaving SamplingWeight at
// zero means "sample proportionally to probability" (no importance boost).
type Definition struct {
	Name              string  `json:"name"`
	ProbabilityWeight float64 `json:"probability_weight"`
	SamplingWeight    float64 `json:"sampling_weight,omitempty"`
}

// Stratum is an allocated sub-region of the sampling space. Owned exclusively
// by this package; immutable once planned.
type Stratum struct {
	ID                int
	Name              string
	ProbabilityWeight float64
	SamplingWeight    float64
	AllocatedPaths    int
}

// ReweightFactor is the importance-sampling correction each of the stratum's
// paths carries into aggregation: probability mass over sampling mass.
func (s Stratum) ReweightFactor() float64 {
	return s.ProbabilityWeight / s.SamplingWeight
}

// Plan allocates totalPaths across the strata: floor(sampling_weight * total)
// each, then the remainder one path at a time to strata in descending
// sampling weight, ties broken by ascending index. The allocations always sum
// to exactly totalPaths.
func Plan(totalPaths int, defs []Definition) ([]Stratum, error) {
	if totalPaths <= 0 {
		return nil, &domain.ConfigurationError{Field: "total_paths", Reason: "must be positive"}
	}
	if len(defs) == 0 {
		return nil, &domain.InvalidStrataError{Reason: "no strata defined"}
	}

	strata := make([]Stratum, len(defs))
	var probSum, sampSum float64
	for i, def := range defs {
		if def.ProbabilityWeight <= 0 {
			return nil, &domain.InvalidStrataError{Reason: "stratum has non-positive probability weight", WeightSum: def.ProbabilityWeight}
		}
		sampling := def.SamplingWeight
		if sampling == 0 {
			sampling = def.ProbabilityWeight
		}
		if sampling <= 0 {
			return nil, &domain.InvalidStrataError{Reason: "stratum has non-positive sampling weight", WeightSum: sampling}
		}
		strata[i] = Stratum{
			ID:                i,
			Name:              def.Name,
			ProbabilityWeight: def.ProbabilityWeight,
			SamplingWeight:    sampling,
		}
		probSum += def.ProbabilityWeight
		sampSum += sampling
	}

	if math.Abs(probSum-1.0) > WeightTolerance {
		return nil, &domain.InvalidStrataError{Reason: "probability weights must sum to 1.0", WeightSum: probSum}
	}
	if math.Abs(sampSum-1.0) > WeightTolerance {
		return nil, &domain.InvalidStrataError{Reason: "sampling weights must sum to 1.0", WeightSum: sampSum}
	}

	// The tolerance admits up to 1e-6 of drift in either direction. Normalize
	// it away before flooring; otherwise weights summing above 1.0 make the
	// floors overshoot totalPaths and the remainder loop cannot correct it.
	for i := range strata {
		strata[i].ProbabilityWeight /= probSum
		strata[i].SamplingWeight /= sampSum
	}

	allocated := 0
	for i := range strata {
		strata[i].AllocatedPaths = int(math.Floor(strata[i].SamplingWeight * float64(totalPaths)))
		allocated += strata[i].AllocatedPaths
	}

	// Hand out the rounding remainder deterministically: heaviest sampling
	// weight first, index ascending on ties.
	remainder := totalPaths - allocated
	order := make([]int, len(strata))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if strata[order[a]].SamplingWeight != strata[order[b]].SamplingWeight {
			return strata[order[a]].SamplingWeight > strata[order[b]].SamplingWeight
		}
		return order[a] < order[b]
	})
	for r := 0; r < remainder; r++ {
		strata[order[r%len(order)]].AllocatedPaths++
	}

	return strata, nil
}

// TotalAllocated sums the per-stratum allocations; always equals the planned
// total for a valid plan.
func TotalAllocated(strata []Stratum) int {
	total := 0
	for _, s := range strata {
		total += s.AllocatedPaths
	}
	return total
}
