package correlation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/domain"
)

// Engine holds the calibrated regimes and the switch specification. Immutable
// after construction; shared read-only across workers.
type Engine struct {
	regimes map[string]*Regime
	spec    SwitchSpec
	dim     int
	log     zerolog.Logger
}

// NewEngine validates that the spec's default and every transition target
// refer to a known regime and that all regimes agree on dimensionality.
func NewEngine(regimes []*Regime, spec SwitchSpec, log zerolog.Logger) (*Engine, error) {
	if len(regimes) == 0 {
		return nil, &domain.ConfigurationError{Field: "regimes", Reason: "at least one correlation regime required"}
	}

	byName := make(map[string]*Regime, len(regimes))
	dim := regimes[0].Dim()
	for _, r := range regimes {
		if _, dup := byName[r.Name()]; dup {
			return nil, &domain.ConfigurationError{Field: "regimes", Reason: fmt.Sprintf("duplicate regime %q", r.Name())}
		}
		if r.Dim() != dim {
			return nil, &domain.ConfigurationError{Field: "regimes", Reason: fmt.Sprintf("regime %q has dimension %d, want %d", r.Name(), r.Dim(), dim)}
		}
		byName[r.Name()] = r
	}

	if spec.Default == "" && len(regimes) == 1 {
		spec.Default = regimes[0].Name()
	}
	if _, ok := byName[spec.Default]; !ok {
		return nil, &domain.ConfigurationError{Field: "switch.default", Reason: fmt.Sprintf("unknown regime %q", spec.Default)}
	}
	for _, rule := range spec.Schedule {
		if _, ok := byName[rule.Regime]; !ok {
			return nil, &domain.ConfigurationError{Field: "switch.schedule", Reason: fmt.Sprintf("unknown regime %q", rule.Regime)}
		}
	}
	for _, rule := range spec.VolRules {
		if _, ok := byName[rule.From]; !ok {
			return nil, &domain.ConfigurationError{Field: "switch.vol_rules", Reason: fmt.Sprintf("unknown regime %q", rule.From)}
		}
		if _, ok := byName[rule.To]; !ok {
			return nil, &domain.ConfigurationError{Field: "switch.vol_rules", Reason: fmt.Sprintf("unknown regime %q", rule.To)}
		}
	}

	return &Engine{
		regimes: byName,
		spec:    spec,
		dim:     dim,
		log:     log.With().Str("component", "correlation_engine").Logger(),
	}, nil
}

// Dim returns the factor dimensionality the engine was calibrated for.
func (e *Engine) Dim() int { return e.dim }

// Regime looks up a regime by name.
func (e *Engine) Regime(name string) (*Regime, bool) {
	r, ok := e.regimes[name]
	return r, ok
}

// JitteredRegimes returns the names of regimes that needed diagonal loading,
// sorted into the result diagnostics by the coordinator.
func (e *Engine) JitteredRegimes() []string {
	var names []string
	for name, r := range e.regimes {
		if r.Jittered() {
			names = append(names, name)
		}
	}
	return names
}

// Correlate applies the named regime's cached Cholesky factor to one raw
// draw vector.
func (e *Engine) Correlate(raw []float64, regime string) ([]float64, error) {
	r, ok := e.regimes[regime]
	if !ok {
		return nil, &domain.ConfigurationError{Field: "regime", Reason: fmt.Sprintf("unknown regime %q", regime)}
	}
	if len(raw) != r.Dim() {
		return nil, &domain.ConfigurationError{Field: "raw", Reason: fmt.Sprintf("draw vector has %d factors, regime expects %d", len(raw), r.Dim())}
	}
	return r.Correlate(raw), nil
}

// CorrelatePath runs a fresh state machine down one path, correlating each
// step's draws under the regime active at that step. Returns the correlated
// path and whether any visited regime carried a jitter diagnostic.
func (e *Engine) CorrelatePath(raw domain.Path) (domain.Path, bool, error) {
	machine := newMachine(e.spec)
	out := make(domain.Path, len(raw))
	jittered := false

	for step, draws := range raw {
		machine.Advance(step)
		regime := e.regimes[machine.Current()]
		if len(draws) != regime.Dim() {
			return nil, false, &domain.ConfigurationError{Field: "raw", Reason: fmt.Sprintf("step %d has %d factors, regime %q expects %d", step, len(draws), regime.Name(), regime.Dim())}
		}
		correlated := regime.Correlate(draws)
		out[step] = correlated
		if regime.Jittered() {
			jittered = true
		}
		machine.Observe(correlated)
	}

	return out, jittered, nil
}
