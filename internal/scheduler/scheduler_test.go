package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopJob struct{}

func (noopJob) Run() error { return nil }

func (noopJob) Name() string { return "noop" }

func TestAddJobValidatesSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a cron expression", noopJob{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register job noop")

	assert.NoError(t, s.AddJob("0 0 2 * * *", noopJob{}))
	assert.NoError(t, s.AddJob("@every 1h", noopJob{}))
}

func TestStartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", noopJob{}))
	s.Start()
	s.Stop()
}
