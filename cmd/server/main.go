package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/riskengine/internal/config"
	"github.com/aristath/riskengine/internal/domain"
	"github.com/aristath/riskengine/internal/modules/coordinator"
	"github.com/aristath/riskengine/internal/modules/correlation"
	"github.com/aristath/riskengine/internal/modules/paths"
	"github.com/aristath/riskengine/internal/modules/pricing"
	"github.com/aristath/riskengine/internal/modules/strata"
	"github.com/aristath/riskengine/internal/scheduler"
	"github.com/aristath/riskengine/internal/server"
	"github.com/aristath/riskengine/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration first so the logger picks up the configured level
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New(logger.Config{Level: "info"})
		bootstrap.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting risk engine")

	coord := coordinator.New(log)

	// Scheduled baseline run (self check), off by default
	sched := scheduler.New(log)
	if cfg.ScheduleEnabled {
		scenario, err := baselineScenario(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build baseline scenario")
		}
		job := scheduler.NewSimulationJob(coord, scenario, log)
		if err := sched.AddJob(cfg.ScheduleCron, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register baseline simulation job")
		}
		sched.Start()
	}

	srv := server.New(cfg, coord, log)

	// Start server in goroutine so we can handle shutdown signals
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	if cfg.ScheduleEnabled {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}

	log.Info().Msg("Stopped")
}

// baselineScenario builds the fixed two-factor scenario the scheduled job
// replays: a calm default regime plus a stress regime reached when realized
// volatility spikes.
func baselineScenario(cfg *config.Config, log zerolog.Logger) (scheduler.Scenario, error) {
	equity, err := paths.NewNormal(0, 1)
	if err != nil {
		return scheduler.Scenario{}, err
	}
	rates, err := paths.NewStudentT(0, 1, 5)
	if err != nil {
		return scheduler.Scenario{}, err
	}
	factors := []domain.RiskFactor{
		{Name: "equity", Volatility: 1, Marginal: equity},
		{Name: "rates", Volatility: 1, Marginal: rates},
	}

	calm, err := correlation.NewRegime("calm", [][]float64{{1, 0.3}, {0.3, 1}}, correlation.RegimeOptions{})
	if err != nil {
		return scheduler.Scenario{}, err
	}
	stress, err := correlation.NewRegime("stress", [][]float64{{2.25, 1.35}, {1.35, 2.25}}, correlation.RegimeOptions{})
	if err != nil {
		return scheduler.Scenario{}, err
	}
	engine, err := correlation.NewEngine([]*correlation.Regime{calm, stress}, correlation.SwitchSpec{
		Default: "calm",
		VolRules: []correlation.VolRule{
			{From: "calm", To: "stress", Window: 5, Threshold: 1.6},
			{From: "stress", To: "calm", Window: 5, Threshold: 0.9},
		},
	}, log)
	if err != nil {
		return scheduler.Scenario{}, err
	}

	plan, err := strata.Plan(cfg.SchedulePaths, []strata.Definition{
		{Name: "body", ProbabilityWeight: 0.9},
		{Name: "tail", ProbabilityWeight: 0.1},
	})
	if err != nil {
		return scheduler.Scenario{}, err
	}

	return scheduler.Scenario{
		Config: domain.SimulationConfig{
			TotalPaths:       cfg.SchedulePaths,
			MasterSeed:       cfg.ScheduleSeed,
			Steps:            10,
			WorkerCount:      cfg.WorkerCount,
			ConfidenceLevels: []float64{0.95, 0.99},
			PartitionTimeout: cfg.PartitionTimeout,
			RunTimeout:       cfg.RunTimeout,
			BatchCount:       cfg.BatchCount,
			MinEffectiveSize: cfg.MinEffectiveSize,
		},
		Factors: factors,
		Strata:  plan,
		Engine:  engine,
		Pricer:  pricing.Linear([]float64{0.6, 0.4}),
	}, nil
}
