// Package domain holds the value types shared across the simulation engine.
// Everything here is immutable once constructed; workers share these values
// without locking.
package domain

import (
	"math/rand/v2"
	"time"
)

// Distribution is the marginal-sampling capability of a risk factor.
// Implementations must be pure: the same source state always yields the
// same draw sequence.
type Distribution interface {
	// Sample draws n independent variates from the marginal using the
	// provided source. Implementations never retain the source.
	Sample(rng *rand.Rand, n int) []float64
}

// RiskFactor is a named stochastic variable with a calibrated marginal
// distribution. Owned by the correlation engine's factor registry and
// immutable after calibration.
type RiskFactor struct {
	Name       string
	Level      float64 // current market level
	Volatility float64 // calibrated per-step volatility
	Marginal   Distribution
}

// SimulationConfig is the immutable per-run configuration. Built once by the
// caller (or the HTTP layer) and passed by value through the engine.
type SimulationConfig struct {
	RunID            string
	TotalPaths       int
	MasterSeed       uint64
	Steps            int
	WorkerCount      int
	MaxRetries       int // retries per failed partition, default 1
	Antithetic       bool
	ConfidenceLevels []float64
	PartitionTimeout time.Duration
	RunTimeout       time.Duration
	BatchCount       int     // sub-batches per stratum for interval estimation
	MinEffectiveSize float64 // floor for the effective sample size
}

// Path is a single simulated trajectory: Steps rows of per-factor increments.
type Path [][]float64

// PathBatch is the unit of work a worker hands back to the coordinator:
// every path generated for one stratum, tagged so the merge can be ordered
// independently of arrival. Read-only once handed over.
type PathBatch struct {
	StratumID int
	WorkerID  int
	Seed      uint64
	Paths     []Path
	Jittered  bool // the active regime needed diagonal loading
}

// Pricer is the external valuation collaborator: a pure function from a path
// batch to one loss value per path. Purity is what keeps reruns bit-identical.
type Pricer interface {
	Price(batch PathBatch) ([]float64, error)
}

// PricerFunc adapts a plain function to the Pricer interface.
type PricerFunc func(batch PathBatch) ([]float64, error)

// Price implements Pricer.
func (f PricerFunc) Price(batch PathBatch) ([]float64, error) { return f(batch) }

// RiskMetric is the point estimate and interval for one confidence level.
type RiskMetric struct {
	Confidence  float64    `json:"confidence"`
	VaR         float64    `json:"var"`
	ES          float64    `json:"es"`
	VaRStdErr   float64    `json:"var_std_err"`
	ESStdErr    float64    `json:"es_std_err"`
	VaRInterval [2]float64 `json:"var_interval"`
	ESInterval  [2]float64 `json:"es_interval"`
}

// BatchStatistic exposes one sub-batch estimate used for the interval
// computation, kept on the result for testability.
type BatchStatistic struct {
	Batch int     `json:"batch"`
	VaR   float64 `json:"var"`
	ES    float64 `json:"es"`
}

// Diagnostics carries convergence and execution telemetry for a run.
// BatchStatistics is keyed by the string form of the confidence level
// ("0.95"); float keys are not JSON-encodable.
type Diagnostics struct {
	StandardError       float64                     `json:"standard_error"`
	EffectiveSampleSize float64                     `json:"effective_sample_size"`
	BatchCount          int                         `json:"batch_count"`
	BatchStatistics     map[string][]BatchStatistic `json:"batch_statistics"`
	JitteredRegimes     []string                    `json:"jittered_regimes,omitempty"`
	Retries             int                         `json:"retries"`
	Elapsed             time.Duration               `json:"elapsed_ns"`
}

// SimulationResult is the aggregated, immutable output of a complete run.
// A failed run never produces one of these.
type SimulationResult struct {
	RunID        string       `json:"run_id"`
	TotalPaths   int          `json:"total_paths"`
	SortedLosses []float64    `json:"sorted_losses"`
	Metrics      []RiskMetric `json:"metrics"`
	Diagnostics  Diagnostics  `json:"diagnostics"`
}
