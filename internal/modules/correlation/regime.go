// Package correlation turns independent draws into correlated risk-factor
// increments using the Cholesky factor of the active regime's covariance
// matrix, and switches regimes along each simulated path.
package correlation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/riskengine/internal/domain"
)

const (
	// DefaultConditionThreshold is the condition number above which a
	// covariance matrix is treated as near-singular and jittered.
	DefaultConditionThreshold = 1e12

	// symmetryTolerance bounds the allowed asymmetry of input matrices,
	// relative to the largest diagonal entry.
	symmetryTolerance = 1e-9
)

// jitterScales are the diagonal-loading factors tried in order when a
// factorization fails or is too ill-conditioned. Scaled by the mean diagonal.
var jitterScales = []float64{1e-12, 1e-10, 1e-8, 1e-6}

// Regime is one named covariance structure. The Cholesky factor is computed
// once at construction and cached; regimes are immutable and safe to share
// across workers.
type Regime struct {
	name     string
	dim      int
	lower    *mat.TriDense
	jittered bool
	cond     float64
}

// RegimeOptions tunes near-singularity handling.
type RegimeOptions struct {
	// ConditionThreshold above which diagonal loading is applied before
	// decomposition. Zero means DefaultConditionThreshold.
	ConditionThreshold float64
}

// NewRegime validates the covariance matrix (square, symmetric, positive
// semi-definite) and caches its lower Cholesky factor. Near-singular
// matrices get increasing diagonal loading; if every jitter level fails the
// construction fails with SingularCovarianceError.
func NewRegime(name string, covariance [][]float64, opts RegimeOptions) (*Regime, error) {
	n := len(covariance)
	if n == 0 {
		return nil, &domain.ConfigurationError{Field: "covariance", Reason: "matrix is empty"}
	}
	for i, row := range covariance {
		if len(row) != n {
			return nil, &domain.ConfigurationError{Field: "covariance", Reason: fmt.Sprintf("row %d has %d columns, want %d", i, len(row), n)}
		}
	}

	threshold := opts.ConditionThreshold
	if threshold <= 0 {
		threshold = DefaultConditionThreshold
	}

	var maxDiag, meanDiag float64
	for i := 0; i < n; i++ {
		d := covariance[i][i]
		if d <= 0 {
			return nil, &domain.ConfigurationError{Field: "covariance", Reason: fmt.Sprintf("diagonal entry %d is non-positive", i)}
		}
		meanDiag += d
		if d > maxDiag {
			maxDiag = d
		}
	}
	meanDiag /= float64(n)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(covariance[i][j]-covariance[j][i]) > symmetryTolerance*maxDiag {
				return nil, &domain.ConfigurationError{Field: "covariance", Reason: fmt.Sprintf("matrix is not symmetric at (%d,%d)", i, j)}
			}
		}
	}

	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = covariance[i][j]
		}
	}

	var chol mat.Cholesky
	var lastCond float64 = math.Inf(1)
	jittered := false

	factorize := func(jitter float64) bool {
		loaded := make([]float64, len(data))
		copy(loaded, data)
		for i := 0; i < n; i++ {
			loaded[i*n+i] += jitter
		}
		sym := mat.NewSymDense(n, loaded)
		if !chol.Factorize(sym) {
			return false
		}
		lastCond = chol.Cond()
		return lastCond <= threshold
	}

	ok := factorize(0)
	if !ok {
		for _, scale := range jitterScales {
			if factorize(scale * meanDiag) {
				ok = true
				jittered = true
				break
			}
		}
	}
	if !ok {
		return nil, &domain.SingularCovarianceError{Regime: name, Condition: lastCond}
	}

	lower := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(lower)

	return &Regime{
		name:     name,
		dim:      n,
		lower:    lower,
		jittered: jittered,
		cond:     lastCond,
	}, nil
}

// Name returns the regime's identifier.
func (r *Regime) Name() string { return r.name }

// Dim returns the factor dimensionality of the regime.
func (r *Regime) Dim() int { return r.dim }

// Jittered reports whether diagonal loading was needed before decomposition.
// Carried through to result diagnostics rather than failing the run.
func (r *Regime) Jittered() bool { return r.jittered }

// ConditionNumber returns the condition number of the factorized matrix.
func (r *Regime) ConditionNumber() float64 { return r.cond }

// Correlate applies the cached lower factor to one independent draw vector:
// out = L * z. The factor was computed once at construction, never per path.
func (r *Regime) Correlate(z []float64) []float64 {
	out := make([]float64, r.dim)
	for i := 0; i < r.dim; i++ {
		var sum float64
		for j := 0; j <= i; j++ {
			sum += r.lower.At(i, j) * z[j]
		}
		out[i] = sum
	}
	return out
}
