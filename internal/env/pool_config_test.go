package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPoolConfigDefaults(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 2*time.Second, cfg.RestartCooldown)
	assert.Equal(t, 30*time.Second, cfg.SingleShotTimeout)
	assert.Equal(t, 8, cfg.SingleShotConcurrent)
	assert.Equal(t, 16, cfg.SubmitBatchLimit)
}

func TestDefaultPoolConfigEnvOverlay(t *testing.T) {
	t.Setenv("LINEPOOL_WORKER_COUNT_DEFAULT", "12")
	t.Setenv("LINEPOOL_RESTART_COOLDOWN", "5s")
	t.Setenv("LINEPOOL_SINGLE_SHOT_TIMEOUT", "1m")
	t.Setenv("LINEPOOL_SINGLE_SHOT_CONCURRENT", "3")
	t.Setenv("LINEPOOL_SUBMIT_BATCH_LIMIT", "7")

	cfg := DefaultPoolConfig()
	assert.Equal(t, 12, cfg.WorkerCount)
	assert.Equal(t, 5*time.Second, cfg.RestartCooldown)
	assert.Equal(t, time.Minute, cfg.SingleShotTimeout)
	assert.Equal(t, 3, cfg.SingleShotConcurrent)
	assert.Equal(t, 7, cfg.SubmitBatchLimit)
}

func TestDefaultPoolConfigIgnoresInvalidEnv(t *testing.T) {
	t.Setenv("LINEPOOL_WORKER_COUNT_DEFAULT", "not-a-number")
	cfg := DefaultPoolConfig()
	assert.Equal(t, 4, cfg.WorkerCount)
}
