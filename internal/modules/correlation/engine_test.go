package correlation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/domain"
	"github.com/aristath/riskengine/internal/modules/paths"
	"github.com/aristath/riskengine/pkg/formulas"
)

func TestNewRegimeValidation(t *testing.T) {
	tests := []struct {
		name       string
		covariance [][]float64
		wantCfg    bool // ConfigurationError; otherwise SingularCovarianceError
	}{
		{
			name:       "empty matrix",
			covariance: nil,
			wantCfg:    true,
		},
		{
			name:       "ragged matrix",
			covariance: [][]float64{{1, 0}, {0}},
			wantCfg:    true,
		},
		{
			name:       "asymmetric matrix",
			covariance: [][]float64{{1, 0.5}, {0.2, 1}},
			wantCfg:    true,
		},
		{
			name:       "non-positive diagonal",
			covariance: [][]float64{{0, 0}, {0, 1}},
			wantCfg:    true,
		},
		{
			name: "negative definite",
			covariance: [][]float64{
				{1, 2},
				{2, 1},
			},
			wantCfg: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegime("test", tt.covariance, RegimeOptions{})
			require.Error(t, err)
			if tt.wantCfg {
				var cfgErr *domain.ConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
			} else {
				var covErr *domain.SingularCovarianceError
				assert.ErrorAs(t, err, &covErr)
			}
		})
	}
}

func TestNewRegimeJittersNearSingular(t *testing.T) {
	// Perfectly correlated factors: PSD but singular. Diagonal loading has
	// to rescue the decomposition and flag the regime.
	regime, err := NewRegime("degenerate", [][]float64{
		{1, 1},
		{1, 1},
	}, RegimeOptions{})
	require.NoError(t, err)
	assert.True(t, regime.Jittered(), "singular matrix must carry the jitter diagnostic")

	healthy, err := NewRegime("healthy", [][]float64{
		{1, 0.5},
		{0.5, 1},
	}, RegimeOptions{})
	require.NoError(t, err)
	assert.False(t, healthy.Jittered())
}

func TestCorrelateIdentityPassthrough(t *testing.T) {
	regime, err := NewRegime("identity", [][]float64{
		{1, 0},
		{0, 1},
	}, RegimeOptions{})
	require.NoError(t, err)

	z := []float64{0.7, -1.2}
	out := regime.Correlate(z)
	assert.InDelta(t, 0.7, out[0], 1e-12)
	assert.InDelta(t, -1.2, out[1], 1e-12)
}

func TestCorrelateRecoversInputCorrelation(t *testing.T) {
	// Statistical property: with cov [[1,0.5],[0.5,1]] the empirical
	// correlation of correlated draws converges to 0.5.
	regime, err := NewRegime("calm", [][]float64{
		{1, 0.5},
		{0.5, 1},
	}, RegimeOptions{})
	require.NoError(t, err)

	engine, err := NewEngine([]*Regime{regime}, SwitchSpec{Default: "calm"}, zerolog.Nop())
	require.NoError(t, err)

	n, err := paths.NewNormal(0, 1)
	require.NoError(t, err)
	gen, err := paths.NewGenerator([]domain.RiskFactor{
		{Name: "x", Marginal: n},
		{Name: "y", Marginal: n},
	}, false, zerolog.Nop())
	require.NoError(t, err)

	const pathCount = 100_000
	raw, err := gen.Generate(context.Background(), 31337, 1, pathCount)
	require.NoError(t, err)

	xs := make([]float64, pathCount)
	ys := make([]float64, pathCount)
	for i, path := range raw {
		out, _, err := engine.CorrelatePath(path)
		require.NoError(t, err)
		xs[i] = out[0][0]
		ys[i] = out[0][1]
	}

	assert.InDelta(t, 0.5, formulas.SampleCorrelation(xs, ys), 0.02)
}

func TestEngineValidation(t *testing.T) {
	calm, err := NewRegime("calm", [][]float64{{1}}, RegimeOptions{})
	require.NoError(t, err)
	wide, err := NewRegime("wide", [][]float64{{1, 0}, {0, 1}}, RegimeOptions{})
	require.NoError(t, err)

	var cfgErr *domain.ConfigurationError

	_, err = NewEngine(nil, SwitchSpec{}, zerolog.Nop())
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewEngine([]*Regime{calm, wide}, SwitchSpec{Default: "calm"}, zerolog.Nop())
	assert.ErrorAs(t, err, &cfgErr, "regimes must agree on dimensionality")

	_, err = NewEngine([]*Regime{calm}, SwitchSpec{Default: "missing"}, zerolog.Nop())
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewEngine([]*Regime{calm}, SwitchSpec{
		Default:  "calm",
		Schedule: []ScheduleRule{{Step: 3, Regime: "missing"}},
	}, zerolog.Nop())
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewEngine([]*Regime{calm}, SwitchSpec{
		Default:  "calm",
		VolRules: []VolRule{{From: "calm", To: "missing", Window: 2, Threshold: 1}},
	}, zerolog.Nop())
	assert.ErrorAs(t, err, &cfgErr)

	// A single regime may omit the default.
	engine, err := NewEngine([]*Regime{calm}, SwitchSpec{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Dim())
}

func TestMachineScheduleSwitching(t *testing.T) {
	spec := SwitchSpec{
		Default: "calm",
		Schedule: []ScheduleRule{
			{Step: 3, Regime: "stress"},
			{Step: 6, Regime: "calm"},
		},
	}

	m := newMachine(spec)
	wantByStep := []string{"calm", "calm", "calm", "stress", "stress", "stress", "calm", "calm"}
	for step, want := range wantByStep {
		m.Advance(step)
		assert.Equal(t, want, m.Current(), "step %d", step)
	}
}

func TestMachineVolRuleSwitching(t *testing.T) {
	spec := SwitchSpec{
		Default: "calm",
		VolRules: []VolRule{
			{From: "calm", To: "stress", Window: 2, Threshold: 1.0},
			{From: "stress", To: "calm", Window: 2, Threshold: 0.1},
		},
	}

	m := newMachine(spec)

	// Quiet increments keep the machine calm.
	m.Advance(0)
	m.Observe([]float64{0.01, 0.02})
	m.Advance(1)
	assert.Equal(t, "calm", m.Current())
	m.Observe([]float64{0.01, 0.0})

	// A volatility spike over the trailing window triggers stress.
	m.Observe([]float64{3.0, -3.0})
	m.Advance(2)
	assert.Equal(t, "stress", m.Current())

	// Once the spike leaves the window, moderate increments cross the
	// reverse rule's lower threshold without re-tripping the 1.0 rule.
	m.Observe([]float64{0.2, -0.2})
	m.Observe([]float64{0.2, -0.2})
	m.Advance(3)
	assert.Equal(t, "calm", m.Current(), "regimes may be revisited")
}

func TestCorrelatePathTracksJitterDiagnostic(t *testing.T) {
	degenerate, err := NewRegime("degenerate", [][]float64{
		{1, 1},
		{1, 1},
	}, RegimeOptions{})
	require.NoError(t, err)
	engine, err := NewEngine([]*Regime{degenerate}, SwitchSpec{Default: "degenerate"}, zerolog.Nop())
	require.NoError(t, err)

	_, jittered, err := engine.CorrelatePath(domain.Path{{0.5, -0.5}})
	require.NoError(t, err)
	assert.True(t, jittered)
}

func TestCorrelateUnknownRegime(t *testing.T) {
	calm, err := NewRegime("calm", [][]float64{{1}}, RegimeOptions{})
	require.NoError(t, err)
	engine, err := NewEngine([]*Regime{calm}, SwitchSpec{Default: "calm"}, zerolog.Nop())
	require.NoError(t, err)

	_, err = engine.Correlate([]float64{1}, "stress")
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	out, err := engine.Correlate([]float64{2}, "calm")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out[0], 1e-12)
}
