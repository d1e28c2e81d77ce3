// Package pricing ships the built-in valuation collaborator used by the HTTP
// service: a linear (delta) portfolio pricer. Full revaluation and instrument
// models live outside the engine behind the Pricer interface.
package pricing

import (
	"fmt"

	"github.com/aristath/riskengine/internal/domain"
)

// Linear returns a pure pricer that maps each path to a loss value:
// the negated sum of portfolio-weighted factor increments across all steps.
// Positive losses are bad, matching the aggregator's sign convention.
func Linear(weights []float64) domain.PricerFunc {
	return func(batch domain.PathBatch) ([]float64, error) {
		losses := make([]float64, len(batch.Paths))
		for p, path := range batch.Paths {
			var pnl float64
			for _, step := range path {
				if len(step) != len(weights) {
					return nil, fmt.Errorf("path in stratum %d has %d factors, pricer has %d weights", batch.StratumID, len(step), len(weights))
				}
				for f, w := range weights {
					pnl += w * step[f]
				}
			}
			losses[p] = -pnl
		}
		return losses, nil
	}
}
