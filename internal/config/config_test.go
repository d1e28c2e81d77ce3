package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 5_000_000, cfg.MaxPathsPerRun)
	assert.Equal(t, 20, cfg.BatchCount)
	assert.Equal(t, 100.0, cfg.MinEffectiveSize)
	assert.Equal(t, 2*time.Minute, cfg.PartitionTimeout)
	assert.Equal(t, 15*time.Minute, cfg.RunTimeout)
	assert.False(t, cfg.ScheduleEnabled)
	assert.Equal(t, uint64(42), cfg.ScheduleSeed)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("SIM_WORKERS", "3")
	t.Setenv("SIM_MAX_PATHS", "250000")
	t.Setenv("SIM_BATCH_COUNT", "40")
	t.Setenv("SIM_MIN_EFFECTIVE_SIZE", "500.5")
	t.Setenv("SIM_PARTITION_TIMEOUT", "30s")
	t.Setenv("SIM_RUN_TIMEOUT", "5m")
	t.Setenv("SIM_SCHEDULE_ENABLED", "true")
	t.Setenv("SIM_SCHEDULE_CRON", "0 30 1 * * *")
	t.Setenv("SIM_SCHEDULE_PATHS", "50000")
	t.Setenv("SIM_SCHEDULE_SEED", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, 250000, cfg.MaxPathsPerRun)
	assert.Equal(t, 40, cfg.BatchCount)
	assert.Equal(t, 500.5, cfg.MinEffectiveSize)
	assert.Equal(t, 30*time.Second, cfg.PartitionTimeout)
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout)
	assert.True(t, cfg.ScheduleEnabled)
	assert.Equal(t, "0 30 1 * * *", cfg.ScheduleCron)
	assert.Equal(t, 50000, cfg.SchedulePaths)
	assert.Equal(t, uint64(7), cfg.ScheduleSeed)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("SIM_PARTITION_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.PartitionTimeout)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:             8002,
		WorkerCount:      4,
		MaxPathsPerRun:   1000,
		PartitionTimeout: time.Minute,
		RunTimeout:       10 * time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "invalid port",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.WorkerCount = 0 },
			wantErr: "invalid worker count",
		},
		{
			name:    "zero path ceiling",
			mutate:  func(c *Config) { c.MaxPathsPerRun = 0 },
			wantErr: "invalid max paths",
		},
		{
			name:    "non-positive timeout",
			mutate:  func(c *Config) { c.RunTimeout = 0 },
			wantErr: "timeouts must be positive",
		},
		{
			name:    "partition timeout exceeds run timeout",
			mutate:  func(c *Config) { c.PartitionTimeout = 20 * time.Minute },
			wantErr: "exceeds run timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
