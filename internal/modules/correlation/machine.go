package correlation

import (
	"sort"

	"github.com/aristath/riskengine/pkg/formulas"
)

// ScheduleRule switches to a regime when the simulated time index reaches
// Step. Schedules are deterministic: they fire regardless of path state.
type ScheduleRule struct {
	Step   int    `json:"step"`
	Regime string `json:"regime"`
}

// VolRule switches from one regime to another when the realized volatility
// of the correlated increments over the trailing Window steps crosses
// Threshold. Evaluated on simulated path state, so different paths may sit
// in different regimes at the same step.
type VolRule struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Window    int     `json:"window"`
	Threshold float64 `json:"threshold"`
}

// SwitchSpec is the immutable description of the regime state machine:
// a default state plus schedule- and volatility-driven transitions.
// There is no terminal state; regimes may be revisited.
type SwitchSpec struct {
	Default  string         `json:"default"`
	Schedule []ScheduleRule `json:"schedule,omitempty"`
	VolRules []VolRule      `json:"vol_rules,omitempty"`
}

// Machine is the per-path instantiation of a SwitchSpec. One machine is
// created per path; it is the only mutable state in the correlation step and
// is never shared between paths or workers.
type Machine struct {
	spec      SwitchSpec
	schedule  []ScheduleRule // sorted by step
	current   string
	maxWindow int
	history   [][]float64 // trailing correlated increments, newest last
}

func newMachine(spec SwitchSpec) *Machine {
	schedule := make([]ScheduleRule, len(spec.Schedule))
	copy(schedule, spec.Schedule)
	sort.SliceStable(schedule, func(i, j int) bool { return schedule[i].Step < schedule[j].Step })

	maxWindow := 0
	for _, rule := range spec.VolRules {
		if rule.Window > maxWindow {
			maxWindow = rule.Window
		}
	}

	return &Machine{
		spec:      spec,
		schedule:  schedule,
		current:   spec.Default,
		maxWindow: maxWindow,
	}
}

// Current returns the name of the active regime.
func (m *Machine) Current() string { return m.current }

// Advance moves the machine to the given time index before that step's
// draws are correlated. Schedule rules take precedence over volatility
// rules; within each kind, the first matching rule wins.
func (m *Machine) Advance(step int) {
	for _, rule := range m.schedule {
		if rule.Step == step {
			m.current = rule.Regime
			return
		}
	}

	if len(m.history) == 0 {
		return
	}
	for _, rule := range m.spec.VolRules {
		if rule.From != m.current || rule.Window <= 0 || len(m.history) < rule.Window {
			continue
		}
		window := m.flattenWindow(rule.Window)
		if formulas.RealizedVolatility(window) > rule.Threshold {
			m.current = rule.To
			return
		}
	}
}

// Observe records the correlated increments of the step just simulated so
// volatility rules can evaluate on them at the next step.
func (m *Machine) Observe(increments []float64) {
	if m.maxWindow == 0 {
		return
	}
	row := make([]float64, len(increments))
	copy(row, increments)
	m.history = append(m.history, row)
	if len(m.history) > m.maxWindow {
		m.history = m.history[len(m.history)-m.maxWindow:]
	}
}

// flattenWindow concatenates the trailing window steps of increments into a
// single series for the realized-volatility estimate.
func (m *Machine) flattenWindow(window int) []float64 {
	start := len(m.history) - window
	var flat []float64
	for _, row := range m.history[start:] {
		flat = append(flat, row...)
	}
	return flat
}
