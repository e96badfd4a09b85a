package workerpool

import (
	"os"

	"go.uber.org/zap"
)

// workerModeEnv is set on a worker's environment (cold-spawned, single-shot,
// or a fork supervisor's child) to tell the re-exec'd binary to run as a worker instead of its normal entry
// point. This is the standard Go "self re-exec" trick (the same one
// containerd/runc use to turn one binary into both a CLI and its own
// subprocess init): Go cannot fork a live multi-threaded process, so instead
// of a separate worker binary, the coordinator execs its own os.Executable()
// with this variable set.
const workerModeEnv = "LINEPOOL_WORKER_MODE"

// supervisorModeEnv is the fork-mode analogue: set on the supervisor
// process's environment so the re-exec'd binary runs runSupervisorMain
// instead of WorkerTarget.
const supervisorModeEnv = "LINEPOOL_SUPERVISOR_MODE"

// IsWorkerProcess reports whether the current process was re-exec'd to act
// as a worker. Call this at the very top of main(), before flag parsing or
// any other startup work.
func IsWorkerProcess() bool { return os.Getenv(workerModeEnv) == "1" }

// IsSupervisorProcess reports whether the current process was re-exec'd to
// act as a preloaded-fork supervisor.
func IsSupervisorProcess() bool { return os.Getenv(supervisorModeEnv) == "1" }

// osExecutableOrArgv0 resolves the path to re-exec: os.Executable when
// available, falling back to argv[0] the same way ColdSpawnManager does.
func osExecutableOrArgv0() (string, error) {
	if path, err := os.Executable(); err == nil {
		return path, nil
	}
	return os.Args[0], nil
}

// RunReexecMain dispatches to WorkerTarget or the supervisor main loop when
// the current process was re-exec'd for one of those roles, and reports
// whether it did so. main() should call this before any other startup work
// and os.Exit with the returned code when handled is true.
//
// Every process incarnation runs the same main(), so factory, storage and
// logInit here are the values that this process's own main() built; none of
// them is passed across the exec boundary.
func RunReexecMain(factory ExecutorFactory, storage RunStorage, logInit LogContextInitializer, log *zap.Logger) (code int, handled bool) {
	switch {
	case IsWorkerProcess():
		return WorkerTarget(factory, storage, logInit, log), true
	case IsSupervisorProcess():
		return runSupervisorMain(factory, storage, logInit, log), true
	default:
		return 0, false
	}
}
