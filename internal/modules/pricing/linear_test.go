package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/domain"
)

func TestLinear(t *testing.T) {
	pricer := Linear([]float64{0.6, 0.4})

	batch := domain.PathBatch{
		StratumID: 0,
		Paths: []domain.Path{
			{{1, 1}, {1, 1}},   // pnl 2.0 => loss -2.0
			{{-1, -1}},         // pnl -1.0 => loss 1.0
			{{0.5, -0.5}},      // pnl 0.1 => loss -0.1
			{{0, 0}, {0, 0}},   // flat path
		},
	}

	losses, err := pricer.Price(batch)
	require.NoError(t, err)
	require.Len(t, losses, 4)
	assert.InDelta(t, -2.0, losses[0], 1e-12)
	assert.InDelta(t, 1.0, losses[1], 1e-12)
	assert.InDelta(t, -0.1, losses[2], 1e-12)
	assert.Zero(t, losses[3])
}

func TestLinearWeightMismatch(t *testing.T) {
	pricer := Linear([]float64{1})

	_, err := pricer.Price(domain.PathBatch{
		StratumID: 3,
		Paths:     []domain.Path{{{1, 2}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stratum 3")
}

func TestLinearEmptyBatch(t *testing.T) {
	pricer := Linear([]float64{0.5, 0.5})
	losses, err := pricer.Price(domain.PathBatch{})
	require.NoError(t, err)
	assert.Empty(t, losses)
}
