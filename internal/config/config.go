package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool // pretty console logging

	// Simulation defaults; per-request values override these.
	WorkerCount      int
	MaxPathsPerRun   int
	BatchCount       int
	MinEffectiveSize float64
	PartitionTimeout time.Duration
	RunTimeout       time.Duration

	// Scheduled baseline run (disabled unless a cron expression is set).
	ScheduleEnabled bool
	ScheduleCron    string
	SchedulePaths   int
	ScheduleSeed    uint64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvAsInt("PORT", 8002),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		WorkerCount:      getEnvAsInt("SIM_WORKERS", runtime.NumCPU()),
		MaxPathsPerRun:   getEnvAsInt("SIM_MAX_PATHS", 5_000_000),
		BatchCount:       getEnvAsInt("SIM_BATCH_COUNT", 20),
		MinEffectiveSize: getEnvAsFloat("SIM_MIN_EFFECTIVE_SIZE", 100),
		PartitionTimeout: getEnvAsDuration("SIM_PARTITION_TIMEOUT", 2*time.Minute),
		RunTimeout:       getEnvAsDuration("SIM_RUN_TIMEOUT", 15*time.Minute),
		ScheduleEnabled:  getEnvAsBool("SIM_SCHEDULE_ENABLED", false),
		ScheduleCron:     getEnv("SIM_SCHEDULE_CRON", "0 0 2 * * *"),
		SchedulePaths:    getEnvAsInt("SIM_SCHEDULE_PATHS", 100_000),
		ScheduleSeed:     uint64(getEnvAsInt("SIM_SCHEDULE_SEED", 42)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is sane
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("invalid worker count: %d", c.WorkerCount)
	}
	if c.MaxPathsPerRun <= 0 {
		return fmt.Errorf("invalid max paths per run: %d", c.MaxPathsPerRun)
	}
	if c.PartitionTimeout <= 0 || c.RunTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive (partition %s, run %s)", c.PartitionTimeout, c.RunTimeout)
	}
	if c.PartitionTimeout > c.RunTimeout {
		return fmt.Errorf("partition timeout %s exceeds run timeout %s", c.PartitionTimeout, c.RunTimeout)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
