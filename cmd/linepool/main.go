// Command linepool is the single binary that plays three roles depending on
// how it re-execs itself: the coordinator (default), a worker
// (LINEPOOL_WORKER_MODE=1), or a preloaded-fork supervisor
// (LINEPOOL_SUPERVISOR_MODE=1). See workerpool.RunReexecMain.
package main

import (
	"os"
	"runtime"

	apihttp "github.com/flowline/linepool/internal/api/http"
	"github.com/flowline/linepool/internal/demoflow"
	"github.com/flowline/linepool/internal/env"
	"github.com/flowline/linepool/internal/infrastructure/redisrun"
	"github.com/flowline/linepool/internal/infrastructure/workerpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	return zap.Must(logConfig.Build())
}

func main() {
	log := newLogger()
	defer log.Sync()
	log = log.Named("main")

	redisAddr := envOr("LINEPOOL_REDIS_ADDR", "127.0.0.1:6379")
	storage := redisrun.NewStore(redisAddr, 0, log)
	factory := demoflow.NewFactory(demoflow.Config{Variables: map[string]float64{}})
	logInit := func() error { return nil }

	if code, handled := workerpool.RunReexecMain(factory, storage, logInit, log); handled {
		os.Exit(code)
	}

	poolCfg := env.DefaultPoolConfig()
	manager := newManager(log, poolCfg, factory, storage, logInit)
	pool := workerpool.NewPool(log, manager)

	if err := pool.Start(); err != nil {
		log.Fatal("failed to start worker processes", zap.Error(err))
	}
	defer pool.Shutdown()

	srv, err := apihttp.NewServer(log, pool, apihttp.ServerConfig{
		Addr:           envOr("LINEPOOL_HTTP_ADDR", ":8080"),
		IsDev:          envOr("ENV", "") == "dev",
		SessionRedis:   redisAddr,
		AdminUsername:  envOr("LINEPOOL_ADMIN_USER", "admin"),
		AdminPassword:  envOr("LINEPOOL_ADMIN_PASSWORD", ""),
		SessionSecret:  []byte(envOr("LINEPOOL_SESSION_SECRET", "dev-only-secret-change-me")),
		SubmitTimeout:  poolCfg.SingleShotTimeout,
		DefaultLogTail: 200,
	})
	if err != nil {
		log.Fatal("failed to build HTTP control plane", zap.Error(err))
	}

	if err := srv.Run(); err != nil {
		log.Fatal("HTTP control plane exited", zap.Error(err))
	}
}

// queueManager mirrors workerpool's own unexported queueManager contract so
// newManager has somewhere to declare its return type; any manager
// satisfying it structurally works with workerpool.NewPool.
type queueManager interface {
	workerpool.ProcessManager
	InputQueue(index int) chan<- workerpool.WorkItem
	OutputQueue(index int) <-chan workerpool.Result
}

// newManager picks ColdSpawnManager or PreloadedForkManager by
// LINEPOOL_PROCESS_MODE; preloaded fork only applies on linux (the
// supervisor's Setpgid/Pdeathsig wiring is linux-only), so anything else
// falls back to cold-spawn.
func newManager(log *zap.Logger, cfg env.PoolConfig, factory workerpool.ExecutorFactory, storage workerpool.RunStorage, logInit workerpool.LogContextInitializer) queueManager {
	mode := envOr("LINEPOOL_PROCESS_MODE", "cold")
	if mode == "fork" {
		if runtime.GOOS == "linux" {
			return workerpool.NewPreloadedForkManager(log, cfg.WorkerCount, workerpool.PreloadedForkConfig{
				Env:             os.Environ(),
				RestartCooldown: cfg.RestartCooldown,
			})
		}
		log.Warn("LINEPOOL_PROCESS_MODE=fork requested but unsupported on this platform, falling back to cold-spawn", zap.String("goos", runtime.GOOS))
	}
	return workerpool.NewColdSpawnManager(log, cfg.WorkerCount, workerpool.ColdSpawnConfig{
		Factory:         factory,
		Storage:         storage,
		LogInit:         logInit,
		OperationCtx:    workerpool.OperationContext{"component": "linepool"},
		Env:             os.Environ(),
		RestartCooldown: cfg.RestartCooldown,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
