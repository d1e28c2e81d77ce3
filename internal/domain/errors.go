package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConfigurationError reports invalid input parameters. Raised before any
// compute happens.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// InvalidStrataError reports stratum definitions whose weights do not form a
// probability distribution.
type InvalidStrataError struct {
	Reason    string
	WeightSum float64
}

func (e *InvalidStrataError) Error() string {
	return fmt.Sprintf("invalid strata: %s (weight sum %.8f)", e.Reason, e.WeightSum)
}

// SingularCovarianceError reports a regime covariance matrix that could not
// be decomposed even after diagonal loading.
type SingularCovarianceError struct {
	Regime    string
	Condition float64
}

func (e *SingularCovarianceError) Error() string {
	return fmt.Sprintf("regime %q: covariance matrix is singular beyond tolerance (condition number %.3e)", e.Regime, e.Condition)
}

// SeedExhaustionError reports a draw budget beyond the documented generator
// period floor of 2^64 draws.
type SeedExhaustionError struct {
	Requested string // human-readable draw count, may exceed uint64
}

func (e *SeedExhaustionError) Error() string {
	return fmt.Sprintf("requested draw count %s exceeds the generator period floor of 2^64", e.Requested)
}

// PartitionFailure identifies one stratum partition that could not complete,
// with enough context to reproduce the failure deterministically.
type PartitionFailure struct {
	StratumID int
	WorkerID  int
	Seed      uint64
	Err       error
}

func (f PartitionFailure) String() string {
	return fmt.Sprintf("stratum %d (worker %d, seed %#x): %v", f.StratumID, f.WorkerID, f.Seed, f.Err)
}

// PartialSimulationError reports strata whose partitions failed after the
// retry budget was exhausted. The run produced no result.
type PartialSimulationError struct {
	Failures []PartitionFailure
}

func (e *PartialSimulationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("simulation incomplete after retries: %s", strings.Join(parts, "; "))
}

// FailedStrata returns the ids of the strata that could not complete.
func (e *PartialSimulationError) FailedStrata() []int {
	ids := make([]int, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.StratumID
	}
	return ids
}

// SimulationTimeoutError reports that the global run deadline expired while
// partitions were still outstanding.
type SimulationTimeoutError struct {
	Timeout     time.Duration
	Outstanding []int // stratum ids still unaccounted for
}

func (e *SimulationTimeoutError) Error() string {
	return fmt.Sprintf("simulation run timed out after %s with %d partitions outstanding %v", e.Timeout, len(e.Outstanding), e.Outstanding)
}

// InsufficientSampleError reports an effective sample size below the
// configured reliability floor; the confidence interval would be meaningless.
type InsufficientSampleError struct {
	Effective float64
	Minimum   float64
}

func (e *InsufficientSampleError) Error() string {
	return fmt.Sprintf("effective sample size %.1f below configured minimum %.1f", e.Effective, e.Minimum)
}
