package env

import (
	"os"
	"strconv"
	"time"
)

// PoolConfig holds the pool-wide knobs SPEC_FULL's ambient stack calls for:
// worker count, restart cooldown, per-request timeout, and single-shot
// concurrency. No config file format is introduced — values come from
// environment variables with documented defaults, as plain Go values rather
// than through a config-loading library.
type PoolConfig struct {
	WorkerCount          int
	RestartCooldown      time.Duration
	SingleShotTimeout    time.Duration
	SingleShotConcurrent int
	SubmitBatchLimit     int
}

// DefaultPoolConfig returns the documented defaults, then overlays any
// LINEPOOL_* environment variables present.
func DefaultPoolConfig() PoolConfig {
	cfg := PoolConfig{
		WorkerCount:          4,
		RestartCooldown:      2 * time.Second,
		SingleShotTimeout:    30 * time.Second,
		SingleShotConcurrent: 8,
		SubmitBatchLimit:     16,
	}

	if v, ok := intFromEnv("LINEPOOL_WORKER_COUNT_DEFAULT"); ok {
		cfg.WorkerCount = v
	}
	if v, ok := durationFromEnv("LINEPOOL_RESTART_COOLDOWN"); ok {
		cfg.RestartCooldown = v
	}
	if v, ok := durationFromEnv("LINEPOOL_SINGLE_SHOT_TIMEOUT"); ok {
		cfg.SingleShotTimeout = v
	}
	if v, ok := intFromEnv("LINEPOOL_SINGLE_SHOT_CONCURRENT"); ok {
		cfg.SingleShotConcurrent = v
	}
	if v, ok := intFromEnv("LINEPOOL_SUBMIT_BATCH_LIMIT"); ok {
		cfg.SubmitBatchLimit = v
	}
	return cfg
}

func intFromEnv(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func durationFromEnv(key string) (time.Duration, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
