package paths

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/domain"
)

// The underlying PCG source has a period of 2^128; the engine documents a
// conservative floor of 2^64 draws per seed and refuses budgets beyond it.
const periodFloor float64 = 1 << 64

// ctxCheckInterval is how many paths are drawn between context checks, so a
// partition deadline cuts generation short instead of waiting for the full
// batch.
const ctxCheckInterval = 256

// pcgStreamSalt decorrelates the second PCG seed word from the first.
const pcgStreamSalt = 0x9e3779b97f4a7c15

// Generator produces independent-draw increments for a fixed factor set.
// It is safe for concurrent use: all mutable state lives in the per-call RNG.
type Generator struct {
	factors    []domain.RiskFactor
	antithetic bool
	log        zerolog.Logger
}

// NewGenerator creates a generator for the given calibrated factors.
// Fails fast when any factor is missing its marginal distribution.
func NewGenerator(factors []domain.RiskFactor, antithetic bool, log zerolog.Logger) (*Generator, error) {
	if len(factors) == 0 {
		return nil, &domain.ConfigurationError{Field: "factors", Reason: "at least one risk factor required"}
	}
	for _, f := range factors {
		if f.Marginal == nil {
			return nil, &domain.ConfigurationError{Field: "factors", Reason: fmt.Sprintf("factor %q has no marginal distribution", f.Name)}
		}
	}
	return &Generator{
		factors:    factors,
		antithetic: antithetic,
		log:        log.With().Str("component", "path_generator").Logger(),
	}, nil
}

// FactorCount returns the number of risk factors per increment vector.
func (g *Generator) FactorCount() int { return len(g.factors) }

// Antithetic reports whether mirrored-draw pairing is enabled.
func (g *Generator) Antithetic() bool { return g.antithetic }

// Generate produces count paths of steps increment vectors each, seeded
// deterministically. With antithetic variates enabled, paths come in
// adjacent (draw, -draw) pairs, so count must be even. The context bounds
// the work; cancellation never affects the draws of a completed call.
func (g *Generator) Generate(ctx context.Context, seed uint64, steps, count int) ([]domain.Path, error) {
	if steps <= 0 {
		return nil, &domain.ConfigurationError{Field: "steps", Reason: "must be positive"}
	}
	if count < 0 {
		return nil, &domain.ConfigurationError{Field: "count", Reason: "must be non-negative"}
	}
	if g.antithetic && count%2 != 0 {
		return nil, &domain.ConfigurationError{Field: "count", Reason: "antithetic variates require an even path count"}
	}

	totalDraws := float64(count) * float64(steps) * float64(len(g.factors))
	if totalDraws >= periodFloor {
		return nil, &domain.SeedExhaustionError{Requested: fmt.Sprintf("%.3e", totalDraws)}
	}

	rng := rand.New(rand.NewPCG(seed, seed^pcgStreamSalt))

	basePaths := count
	if g.antithetic {
		basePaths = count / 2
	}

	out := make([]domain.Path, 0, count)
	for p := 0; p < basePaths; p++ {
		if p%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("generation cancelled: %w", err)
			}
		}
		path := g.samplePath(rng, steps)
		out = append(out, path)
		if g.antithetic {
			out = append(out, mirrorPath(path))
		}
	}

	g.log.Debug().
		Uint64("seed", seed).
		Int("paths", count).
		Int("steps", steps).
		Int("factors", len(g.factors)).
		Bool("antithetic", g.antithetic).
		Msg("Generated raw draws")

	return out, nil
}

// samplePath draws one trajectory: each factor contributes a column of
// steps draws, sampled factor by factor so the draw order is fixed.
func (g *Generator) samplePath(rng *rand.Rand, steps int) domain.Path {
	columns := make([][]float64, len(g.factors))
	for f, factor := range g.factors {
		columns[f] = factor.Marginal.Sample(rng, steps)
	}

	path := make(domain.Path, steps)
	for s := 0; s < steps; s++ {
		row := make([]float64, len(g.factors))
		for f := range g.factors {
			row[f] = columns[f][s]
		}
		path[s] = row
	}
	return path
}

// mirrorPath returns the antithetic twin of a path: every draw negated
// around the marginal's location (zero for calibrated increments).
func mirrorPath(path domain.Path) domain.Path {
	mirror := make(domain.Path, len(path))
	for s, row := range path {
		m := make([]float64, len(row))
		for f, v := range row {
			// Negate exactly; -0.0 would break bit-identical comparisons.
			if v == 0 {
				m[f] = 0
			} else {
				m[f] = -v
			}
		}
		mirror[s] = m
	}
	return mirror
}
