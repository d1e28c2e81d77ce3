// Package paths generates independent risk-factor increments from calibrated
// marginal distributions. Draws are deterministic per seed: the same seed
// always replays the same sequence.
package paths

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/riskengine/internal/domain"
)

// Normal is a Gaussian marginal.
type Normal struct {
	Mu    float64
	Sigma float64
}

// NewNormal creates a Gaussian marginal. Sigma must be positive.
func NewNormal(mu, sigma float64) (Normal, error) {
	if sigma <= 0 {
		return Normal{}, &domain.ConfigurationError{Field: "sigma", Reason: "must be positive"}
	}
	return Normal{Mu: mu, Sigma: sigma}, nil
}

// Sample implements domain.Distribution.
func (d Normal) Sample(rng *rand.Rand, n int) []float64 {
	dist := distuv.Normal{Mu: d.Mu, Sigma: d.Sigma, Src: rng}
	draws := make([]float64, n)
	for i := range draws {
		draws[i] = dist.Rand()
	}
	return draws
}

// StudentT is a fat-tailed marginal with configurable degrees of freedom.
// Lower Nu means fatter tails; Nu <= 2 has infinite variance, which is
// allowed but left to the caller's calibration judgement.
type StudentT struct {
	Mu    float64
	Sigma float64
	Nu    float64
}

// NewStudentT creates a Student-t marginal. Sigma and Nu must be positive.
func NewStudentT(mu, sigma, nu float64) (StudentT, error) {
	if sigma <= 0 {
		return StudentT{}, &domain.ConfigurationError{Field: "sigma", Reason: "must be positive"}
	}
	if nu <= 0 {
		return StudentT{}, &domain.ConfigurationError{Field: "nu", Reason: "degrees of freedom must be positive"}
	}
	return StudentT{Mu: mu, Sigma: sigma, Nu: nu}, nil
}

// Sample implements domain.Distribution.
func (d StudentT) Sample(rng *rand.Rand, n int) []float64 {
	dist := distuv.StudentsT{Mu: d.Mu, Sigma: d.Sigma, Nu: d.Nu, Src: rng}
	draws := make([]float64, n)
	for i := range draws {
		draws[i] = dist.Rand()
	}
	return draws
}

// Empirical bootstraps increments from a fixed set of historical
// observations. The observation slice is copied at construction and never
// mutated afterwards.
type Empirical struct {
	observations []float64
}

// NewEmpirical creates a bootstrap marginal from historical observations.
func NewEmpirical(observations []float64) (Empirical, error) {
	if len(observations) == 0 {
		return Empirical{}, &domain.ConfigurationError{Field: "observations", Reason: "empirical distribution needs at least one observation"}
	}
	obs := make([]float64, len(observations))
	copy(obs, observations)
	return Empirical{observations: obs}, nil
}

// Sample implements domain.Distribution.
func (d Empirical) Sample(rng *rand.Rand, n int) []float64 {
	draws := make([]float64, n)
	for i := range draws {
		draws[i] = d.observations[rng.IntN(len(d.observations))]
	}
	return draws
}
