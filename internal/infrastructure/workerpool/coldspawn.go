//go:build linux

package workerpool

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ColdSpawnManager launches each worker with a clean address space: no
// inherited file descriptors beyond its queue-backing pipes, no inherited
// threads. Every restart repeats whatever expensive setup the flow needs —
// the tradeoff PreloadedForkManager exists to avoid.
type ColdSpawnManager struct {
	baseManager

	log     *zap.Logger
	factory ExecutorFactory
	storage RunStorage
	logInit LogContextInitializer
	opCtx   OperationContext
	env     []string

	binaryPath string

	inputQueues  []chan WorkItem
	outputQueues []chan Result

	mu    sync.Mutex
	procs map[int]*coldProc

	restarts *restartDispatcher
}

type coldProc struct {
	cmd     *exec.Cmd
	done    chan struct{} // closed once Wait() returns
	lastErr error
}

// ColdSpawnConfig bundles the constructor arguments; restartCooldown damps
// rapid repeated RestartProcess calls for the same index.
type ColdSpawnConfig struct {
	Factory         ExecutorFactory
	Storage         RunStorage
	LogInit         LogContextInitializer
	OperationCtx    OperationContext
	Env             []string
	RestartCooldown time.Duration
}

// NewColdSpawnManager constructs a manager for the given number of workers.
// Input/output queues are created here and live for the pool's lifetime.
func NewColdSpawnManager(log *zap.Logger, n int, cfg ColdSpawnConfig) *ColdSpawnManager {
	binary, err := os.Executable()
	if err != nil {
		binary = os.Args[0]
	}

	m := &ColdSpawnManager{
		baseManager:  baseManager{registry: NewRegistry(), logs: newLogManager()},
		log:          log.Named("cold-spawn"),
		factory:      cfg.Factory,
		storage:      cfg.Storage,
		logInit:      cfg.LogInit,
		opCtx:        cfg.OperationCtx,
		env:          cfg.Env,
		binaryPath:   binary,
		inputQueues:  make([]chan WorkItem, n),
		outputQueues: make([]chan Result, n),
		procs:        make(map[int]*coldProc),
	}
	for i := range m.inputQueues {
		m.inputQueues[i] = newInputQueue()
		m.outputQueues[i] = newOutputQueue()
	}
	m.restarts = newRestartDispatcher(cfg.RestartCooldown, func(i int) {
		m.EndProcess(i)
		m.NewProcess(i)
	})
	return m
}

func (m *ColdSpawnManager) InputQueue(i int) chan<- WorkItem { return m.inputQueues[i] }
func (m *ColdSpawnManager) OutputQueue(i int) <-chan Result  { return m.outputQueues[i] }

// StartProcesses spawns len(inputQueues) workers.
func (m *ColdSpawnManager) StartProcesses() error {
	for i := range m.inputQueues {
		m.NewProcess(i)
	}
	return nil
}

// NewProcess constructs a fresh worker at index i. Spawn failures are logged
// and swallowed: GetProcessInfo's wait, not this call, surfaces a missing
// worker to the caller (as ProcessInfoObtainedTimeout).
func (m *ColdSpawnManager) NewProcess(i int) {
	cmd := exec.Command(m.binaryPath)
	cmd.Env = append(append([]string{}, m.env...), workerModeEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		m.log.Warn("failed to create stdin pipe", zap.Int("index", i), zap.Error(err))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.log.Warn("failed to create stdout pipe", zap.Int("index", i), zap.Error(err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.log.Warn("failed to create stderr pipe", zap.Int("index", i), zap.Error(err))
		return
	}

	if err := cmd.Start(); err != nil {
		m.log.Warn("failed to spawn worker", zap.Int("index", i), zap.Error(err))
		return
	}

	pid := cmd.Process.Pid
	m.registry.set(i, ProcessInfo{Index: i, PID: pid, Name: fmt.Sprintf("worker-%d", i)})
	m.log.Info("worker spawned", zap.Int("index", i), zap.Int("pid", pid))

	enc := newWireEncoder(stdin)
	if err := enc.encode(wireFrame{Kind: wireBootstrap, Bootstrap: bootstrapPayload{OperationContext: m.opCtx}}); err != nil {
		m.log.Warn("failed to send bootstrap frame", zap.Int("index", i), zap.Error(err))
	}

	done := make(chan struct{})
	proc := &coldProc{cmd: cmd, done: done}

	m.mu.Lock()
	m.procs[i] = proc
	m.mu.Unlock()

	logBuf := m.logs.Get(i)
	go drainStderr(stderr, logBuf)
	go forwardInput(m.inputQueues[i], enc, done)
	go readOutput(stdout, m.outputQueues[i], m.log)

	go func() {
		proc.lastErr = cmd.Wait()
		close(done)
	}()
}

// EndProcess grants the worker 10s to exit voluntarily (the coordinator is
// expected to have already pushed a terminate WorkItem), then forces
// termination and waits unboundedly for it to be reaped.
func (m *ColdSpawnManager) EndProcess(i int) {
	m.mu.Lock()
	proc, ok := m.procs[i]
	m.mu.Unlock()
	if !ok {
		return
	}

	select {
	case m.inputQueues[i] <- WorkItem{Terminate: true}:
	default:
	}

	select {
	case <-proc.done:
	case <-time.After(10 * time.Second):
		m.log.Warn("worker did not exit voluntarily, terminating", zap.Int("index", i))
		if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			m.log.Warn("failed to signal worker", zap.Int("index", i), zap.Error(err))
		}
		<-proc.done
	}

	m.mu.Lock()
	delete(m.procs, i)
	m.mu.Unlock()
	m.registry.remove(i)
}

// RestartProcess queues i for an end-then-create cycle after the configured
// cooldown and returns immediately; restartDispatcher's own goroutine is the
// only caller of the underlying scheduler's next/pop, so concurrent restarts
// for different indices never race on the heap.
func (m *ColdSpawnManager) RestartProcess(i int) {
	m.restarts.Request(i)
}

// GetProcessInfo waits for index i's registry entry. The health check it
// polls, ensureHealthy, is a no-op in cold-spawn mode: OS-level supervision
// is considered sufficient (§4.3).
func (m *ColdSpawnManager) GetProcessInfo(i int) (ProcessInfo, error) {
	return m.registry.GetProcessInfo(i, m)
}

func (m *ColdSpawnManager) ensureHealthy() error { return nil }

func (m *ColdSpawnManager) Logs(i, n int) ([]string, bool) { return m.logs.Read(i, n) }

// Shutdown ends every live worker and stops the restart dispatcher.
func (m *ColdSpawnManager) Shutdown() {
	m.restarts.Close()

	m.mu.Lock()
	indices := make([]int, 0, len(m.procs))
	for i := range m.procs {
		indices = append(indices, i)
	}
	m.mu.Unlock()

	for _, i := range indices {
		m.EndProcess(i)
	}
}
