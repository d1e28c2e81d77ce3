// Package coordinator fans stratum partitions out to a worker pool, retries
// failed partitions, and merges results in deterministic order regardless of
// worker completion order.
package coordinator

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/domain"
	"github.com/aristath/riskengine/internal/modules/aggregation"
	"github.com/aristath/riskengine/internal/modules/correlation"
	"github.com/aristath/riskengine/internal/modules/paths"
	"github.com/aristath/riskengine/internal/modules/strata"
)

// ctxCheckInterval is how many paths a worker simulates between context
// deadline checks.
const ctxCheckInterval = 256

// Input bundles everything one simulation run needs. The coordinator owns
// the only mutable state (its result buffer); factors, strata and the
// correlation engine are shared read-only across workers.
type Input struct {
	Config  domain.SimulationConfig
	Factors []domain.RiskFactor
	Strata  []strata.Stratum
	Engine  *correlation.Engine
	Pricer  domain.Pricer
}

// Coordinator runs simulations over a fixed-size goroutine pool.
type Coordinator struct {
	log zerolog.Logger
}

// New creates a coordinator.
func New(log zerolog.Logger) *Coordinator {
	return &Coordinator{log: log.With().Str("component", "coordinator").Logger()}
}

// job is one stratum partition queued for a worker.
type job struct {
	stratum strata.Stratum
	seed    uint64
	attempt int
}

// jobResult is what a worker reports back, tagged so the collector can merge
// independently of arrival order.
type jobResult struct {
	stratumID int
	workerID  int
	seed      uint64
	attempt   int
	batch     domain.PathBatch
	losses    []float64
	err       error
}

// Run executes the full simulation: plan partitions, dispatch, collect,
// merge, aggregate. It blocks until every partition reports or fails its
// retry budget. A failed run never returns a SimulationResult.
func (c *Coordinator) Run(ctx context.Context, in Input) (*domain.SimulationResult, error) {
	cfg, err := c.normalize(in)
	if err != nil {
		return nil, err
	}

	gen, err := paths.NewGenerator(in.Factors, cfg.Antithetic, c.log)
	if err != nil {
		return nil, err
	}
	if in.Engine.Dim() != gen.FactorCount() {
		return nil, &domain.ConfigurationError{
			Field:  "factors",
			Reason: fmt.Sprintf("%d factors but correlation engine expects %d", gen.FactorCount(), in.Engine.Dim()),
		}
	}

	log := c.log.With().Str("run_id", cfg.RunID).Logger()
	started := time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	capacity := len(in.Strata) * (cfg.MaxRetries + 1)
	jobs := make(chan job, capacity)
	results := make(chan jobResult, capacity)

	var wg sync.WaitGroup
	workerCount := cfg.WorkerCount
	if workerCount > len(in.Strata) {
		workerCount = len(in.Strata)
	}
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(runCtx, workerID, cfg, gen, in.Engine, in.Pricer, jobs, results)
		}(w)
	}

	// Longest partitions first so the pool drains evenly; assignment order
	// never affects results, only wall clock.
	queued := make([]strata.Stratum, len(in.Strata))
	copy(queued, in.Strata)
	sort.SliceStable(queued, func(i, j int) bool {
		if queued[i].AllocatedPaths != queued[j].AllocatedPaths {
			return queued[i].AllocatedPaths > queued[j].AllocatedPaths
		}
		return queued[i].ID < queued[j].ID
	})
	for _, s := range queued {
		jobs <- job{stratum: s, seed: DeriveSeed(cfg.MasterSeed, s.ID)}
	}

	planByID := make(map[int]strata.Stratum, len(in.Strata))
	for _, s := range in.Strata {
		planByID[s.ID] = s
	}

	completed, retries, runErr := c.collect(runCtx, cfg, planByID, jobs, results, log)

	close(jobs)
	cancel()
	wg.Wait()

	if runErr != nil {
		return nil, runErr
	}

	samples, anyJittered := c.merge(in.Strata, completed)

	agg := aggregation.New(cfg.BatchCount, cfg.MinEffectiveSize, c.log)
	result, err := agg.Aggregate(samples, cfg.ConfidenceLevels)
	if err != nil {
		return nil, err
	}

	result.RunID = cfg.RunID
	result.Diagnostics.Retries = retries
	if anyJittered {
		jittered := in.Engine.JitteredRegimes()
		sort.Strings(jittered)
		result.Diagnostics.JitteredRegimes = jittered
	}
	result.Diagnostics.Elapsed = time.Since(started)

	log.Info().
		Int("total_paths", result.TotalPaths).
		Int("strata", len(in.Strata)).
		Int("workers", workerCount).
		Int("retries", retries).
		Dur("elapsed", result.Diagnostics.Elapsed).
		Msg("Simulation run complete")

	return result, nil
}

// normalize validates the run input and fills config defaults.
func (c *Coordinator) normalize(in Input) (domain.SimulationConfig, error) {
	cfg := in.Config

	if cfg.TotalPaths <= 0 {
		return cfg, &domain.ConfigurationError{Field: "total_paths", Reason: "must be positive"}
	}
	if cfg.Steps <= 0 {
		return cfg, &domain.ConfigurationError{Field: "steps", Reason: "must be positive"}
	}
	if len(in.Strata) == 0 {
		return cfg, &domain.InvalidStrataError{Reason: "no strata planned"}
	}
	if total := strata.TotalAllocated(in.Strata); total != cfg.TotalPaths {
		return cfg, &domain.ConfigurationError{
			Field:  "strata",
			Reason: fmt.Sprintf("plan allocates %d paths, config wants %d", total, cfg.TotalPaths),
		}
	}
	if cfg.Antithetic {
		for _, s := range in.Strata {
			if s.AllocatedPaths%2 != 0 {
				return cfg, &domain.ConfigurationError{
					Field:  "strata",
					Reason: fmt.Sprintf("antithetic variates require even allocations; stratum %d has %d", s.ID, s.AllocatedPaths),
				}
			}
		}
	}
	if in.Pricer == nil {
		return cfg, &domain.ConfigurationError{Field: "pricer", Reason: "valuation collaborator required"}
	}
	if in.Engine == nil {
		return cfg, &domain.ConfigurationError{Field: "engine", Reason: "correlation engine required"}
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = runtime.NumCPU()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 1
	}
	return cfg, nil
}

// worker pulls partitions off the queue until it closes or the run is
// cancelled. Each partition is generated, correlated and priced entirely
// inside the worker; no worker ever touches another's output.
func (c *Coordinator) worker(
	ctx context.Context,
	workerID int,
	cfg domain.SimulationConfig,
	gen *paths.Generator,
	engine *correlation.Engine,
	pricer domain.Pricer,
	jobs <-chan job,
	results chan<- jobResult,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			res := c.runPartition(ctx, workerID, cfg, gen, engine, pricer, j)
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runPartition simulates one stratum under the partition deadline.
func (c *Coordinator) runPartition(
	ctx context.Context,
	workerID int,
	cfg domain.SimulationConfig,
	gen *paths.Generator,
	engine *correlation.Engine,
	pricer domain.Pricer,
	j job,
) jobResult {
	res := jobResult{stratumID: j.stratum.ID, workerID: workerID, seed: j.seed, attempt: j.attempt}

	pctx := ctx
	if cfg.PartitionTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, cfg.PartitionTimeout)
		defer cancel()
	}

	raw, err := gen.Generate(pctx, j.seed, cfg.Steps, j.stratum.AllocatedPaths)
	if err != nil {
		res.err = err
		return res
	}

	correlated := make([]domain.Path, len(raw))
	jittered := false
	for i, path := range raw {
		if i%ctxCheckInterval == 0 {
			if err := pctx.Err(); err != nil {
				res.err = fmt.Errorf("partition deadline: %w", err)
				return res
			}
		}
		out, j2, err := engine.CorrelatePath(path)
		if err != nil {
			res.err = err
			return res
		}
		correlated[i] = out
		jittered = jittered || j2
	}

	batch := domain.PathBatch{
		StratumID: j.stratum.ID,
		WorkerID:  workerID,
		Seed:      j.seed,
		Paths:     correlated,
		Jittered:  jittered,
	}

	losses, err := pricer.Price(batch)
	if err != nil {
		res.err = fmt.Errorf("pricing stratum %d: %w", j.stratum.ID, err)
		return res
	}
	if len(losses) != len(batch.Paths) {
		res.err = fmt.Errorf("pricer returned %d losses for %d paths in stratum %d", len(losses), len(batch.Paths), j.stratum.ID)
		return res
	}
	if err := pctx.Err(); err != nil {
		res.err = fmt.Errorf("partition deadline: %w", err)
		return res
	}

	res.batch = batch
	res.losses = losses
	return res
}

// collect drains results, requeueing failed partitions until their retry
// budget runs out. Returns only when every stratum is accounted for, the
// run deadline expires, or the retry budget is exhausted somewhere.
func (c *Coordinator) collect(
	ctx context.Context,
	cfg domain.SimulationConfig,
	plan map[int]strata.Stratum,
	jobs chan<- job,
	results <-chan jobResult,
	log zerolog.Logger,
) (map[int]jobResult, int, error) {
	completed := make(map[int]jobResult, len(plan))
	var failures []domain.PartitionFailure
	retries := 0
	pending := len(plan)

	for pending > 0 {
		select {
		case <-ctx.Done():
			outstanding := make([]int, 0, pending)
			for id := range plan {
				if _, ok := completed[id]; !ok {
					outstanding = append(outstanding, id)
				}
			}
			sort.Ints(outstanding)
			return nil, retries, &domain.SimulationTimeoutError{Timeout: cfg.RunTimeout, Outstanding: outstanding}

		case res := <-results:
			if res.err == nil {
				completed[res.stratumID] = res
				pending--
				continue
			}
			if res.attempt < cfg.MaxRetries {
				retries++
				log.Warn().
					Int("stratum", res.stratumID).
					Int("worker", res.workerID).
					Uint64("seed", res.seed).
					Int("attempt", res.attempt+1).
					Err(res.err).
					Msg("Partition failed, retrying on a fresh worker")
				// Same stratum and seed, so the retried partition is
				// deterministic.
				jobs <- job{
					stratum: plan[res.stratumID],
					seed:    res.seed,
					attempt: res.attempt + 1,
				}
				continue
			}
			failures = append(failures, domain.PartitionFailure{
				StratumID: res.stratumID,
				WorkerID:  res.workerID,
				Seed:      res.seed,
				Err:       res.err,
			})
			pending--
		}
	}

	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].StratumID < failures[j].StratumID })
		return nil, retries, &domain.PartialSimulationError{Failures: failures}
	}
	return completed, retries, nil
}

// merge orders completed batches by stratum id; within a stratum the path
// order is the generation order, so the merged sample is sorted by
// (stratum id, draw index) no matter when workers finished.
func (c *Coordinator) merge(plan []strata.Stratum, completed map[int]jobResult) ([]aggregation.StratumSample, bool) {
	byID := make(map[int]strata.Stratum, len(plan))
	for _, s := range plan {
		byID[s.ID] = s
	}

	ids := make([]int, 0, len(completed))
	for id := range completed {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	samples := make([]aggregation.StratumSample, 0, len(ids))
	anyJittered := false
	for _, id := range ids {
		res := completed[id]
		samples = append(samples, aggregation.StratumSample{
			StratumID: id,
			Weight:    byID[id].ReweightFactor(),
			Losses:    res.losses,
		})
		anyJittered = anyJittered || res.batch.Jittered
	}
	return samples, anyJittered
}
