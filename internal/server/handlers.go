package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/config"
	"github.com/aristath/riskengine/internal/domain"
	"github.com/aristath/riskengine/internal/modules/coordinator"
	"github.com/aristath/riskengine/internal/modules/correlation"
	"github.com/aristath/riskengine/internal/modules/paths"
	"github.com/aristath/riskengine/internal/modules/pricing"
	"github.com/aristath/riskengine/internal/modules/strata"
)

// SimulationHandlers exposes simulation runs over HTTP.
type SimulationHandlers struct {
	cfg   *config.Config
	coord *coordinator.Coordinator
	log   zerolog.Logger
}

// NewSimulationHandlers creates the simulation endpoint handlers.
func NewSimulationHandlers(cfg *config.Config, coord *coordinator.Coordinator, log zerolog.Logger) *SimulationHandlers {
	return &SimulationHandlers{
		cfg:   cfg,
		coord: coord,
		log:   log.With().Str("component", "simulation_handlers").Logger(),
	}
}

// FactorSpec describes one risk factor in a run request.
type FactorSpec struct {
	Name         string    `json:"name"`
	Distribution string    `json:"distribution"` // normal, student_t, empirical
	Mu           float64   `json:"mu"`
	Sigma        float64   `json:"sigma"`
	Nu           float64   `json:"nu,omitempty"`
	Observations []float64 `json:"observations,omitempty"`
}

// RegimeSpec describes one correlation regime in a run request.
type RegimeSpec struct {
	Name       string      `json:"name"`
	Covariance [][]float64 `json:"covariance"`
}

// RunRequest is the body of POST /api/v1/simulations/run.
type RunRequest struct {
	TotalPaths       int                    `json:"total_paths"`
	Seed             uint64                 `json:"seed"`
	Steps            int                    `json:"steps"`
	Workers          int                    `json:"workers,omitempty"`
	Antithetic       bool                   `json:"antithetic,omitempty"`
	ConfidenceLevels []float64              `json:"confidence_levels"`
	Factors          []FactorSpec           `json:"factors"`
	Regimes          []RegimeSpec           `json:"regimes"`
	Switch           correlation.SwitchSpec `json:"switch"`
	Strata           []strata.Definition    `json:"strata"`
	PortfolioWeights []float64              `json:"portfolio_weights"`
}

// Run handles POST /api/v1/simulations/run.
func (h *SimulationHandlers) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.TotalPaths > h.cfg.MaxPathsPerRun {
		writeError(w, http.StatusBadRequest, "total_paths exceeds the configured per-run limit")
		return
	}
	if len(req.PortfolioWeights) != len(req.Factors) {
		writeError(w, http.StatusBadRequest, "portfolio_weights must match factors")
		return
	}

	factors, err := buildFactors(req.Factors)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	regimes := make([]*correlation.Regime, 0, len(req.Regimes))
	for _, spec := range req.Regimes {
		regime, err := correlation.NewRegime(spec.Name, spec.Covariance, correlation.RegimeOptions{})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		regimes = append(regimes, regime)
	}

	engine, err := correlation.NewEngine(regimes, req.Switch, h.log)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	plan, err := strata.Plan(req.TotalPaths, req.Strata)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	cfg := domain.SimulationConfig{
		TotalPaths:       req.TotalPaths,
		MasterSeed:       req.Seed,
		Steps:            req.Steps,
		WorkerCount:      req.Workers,
		Antithetic:       req.Antithetic,
		ConfidenceLevels: req.ConfidenceLevels,
		PartitionTimeout: h.cfg.PartitionTimeout,
		RunTimeout:       h.cfg.RunTimeout,
		BatchCount:       h.cfg.BatchCount,
		MinEffectiveSize: h.cfg.MinEffectiveSize,
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = h.cfg.WorkerCount
	}

	result, err := h.coord.Run(r.Context(), coordinator.Input{
		Config:  cfg,
		Factors: factors,
		Strata:  plan,
		Engine:  engine,
		Pricer:  pricing.Linear(req.PortfolioWeights),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// buildFactors turns request specs into calibrated risk factors.
func buildFactors(specs []FactorSpec) ([]domain.RiskFactor, error) {
	factors := make([]domain.RiskFactor, 0, len(specs))
	for _, spec := range specs {
		var marginal domain.Distribution
		var err error
		switch spec.Distribution {
		case "normal", "":
			marginal, err = paths.NewNormal(spec.Mu, spec.Sigma)
		case "student_t":
			marginal, err = paths.NewStudentT(spec.Mu, spec.Sigma, spec.Nu)
		case "empirical":
			marginal, err = paths.NewEmpirical(spec.Observations)
		default:
			err = &domain.ConfigurationError{Field: "distribution", Reason: "unknown distribution " + spec.Distribution}
		}
		if err != nil {
			return nil, err
		}
		factors = append(factors, domain.RiskFactor{
			Name:       spec.Name,
			Volatility: spec.Sigma,
			Marginal:   marginal,
		})
	}
	return factors, nil
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
// Calibration and configuration problems are the caller's fault; partial or
// timed-out runs are not.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		cfgErr     *domain.ConfigurationError
		strataErr  *domain.InvalidStrataError
		covErr     *domain.SingularCovarianceError
		seedErr    *domain.SeedExhaustionError
		sampleErr  *domain.InsufficientSampleError
		partialErr *domain.PartialSimulationError
		timeoutErr *domain.SimulationTimeoutError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &strataErr), errors.As(err, &covErr), errors.As(err, &seedErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &sampleErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &timeoutErr):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &partialErr):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON marshals before writing the header so an encoding failure can
// still be reported as a 500 instead of a 200 with an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"response encoding failed"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
