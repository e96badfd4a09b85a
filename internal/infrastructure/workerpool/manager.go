package workerpool

import (
	"os"
	"syscall"
	"time"
)

// ProcessManager is the lifecycle contract both concrete managers satisfy.
// Index-scoped operations (new/end/restart) log and continue on failure —
// they never fail the whole pool, per the coordinator-side error policy.
type ProcessManager interface {
	StartProcesses() error
	NewProcess(index int)
	EndProcess(index int)
	RestartProcess(index int)
	GetProcessInfo(index int) (ProcessInfo, error)
	Logs(index int, n int) ([]string, bool)
	Shutdown()
}

// baseManager centralizes the parts both ColdSpawnManager and
// PreloadedForkManager share: the registry and the log manager.
type baseManager struct {
	registry *Registry
	logs     *logManager
}

const processTerminatedTimeout = 60 * time.Second

// ensureProcessTerminatedWithinTimeout blocks until pid no longer exists or
// _PROCESS_TERMINATED_TIMEOUT elapses.
func ensureProcessTerminatedWithinTimeout(pid int) error {
	start := time.Now()
	for pidExists(pid) {
		if time.Since(start) > processTerminatedTimeout {
			return &ProcessTerminatedTimeout{TimeoutSeconds: int(processTerminatedTimeout.Seconds())}
		}
		time.Sleep(1 * time.Second)
	}
	return nil
}

// pidExists reports whether pid identifies a live (or zombie, i.e. not yet
// reaped) OS process, the Go equivalent of psutil.pid_exists: sending signal
// 0 only checks permissions/existence, it never actually signals anything.
func pidExists(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
