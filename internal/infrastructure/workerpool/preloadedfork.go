//go:build linux

package workerpool

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// PreloadedForkManager runs every worker behind a single supervisor
// subprocess, which builds the expensive part of the executor exactly once
// and hands every child a warm snapshot instead of redoing that work per
// restart. Go cannot fork a live multi-threaded process, so "preloaded
// fork" here means: one re-exec'd supervisor, which itself cold-execs its
// children but skips their expensive setup via Snapshotter (see
// SPEC_FULL.md §2, §4.4).
//
// The coordinator never talks to a child directly — everything (control
// signals, requests, results, registry updates, log lines) is multiplexed
// over the supervisor's stdin/stdout.
type PreloadedForkManager struct {
	baseManager

	log             *zap.Logger
	n               int
	binaryPath      string
	env             []string
	restartCooldown time.Duration

	inputQueues  []chan WorkItem
	outputQueues []chan Result

	mu        sync.Mutex
	cmd       *exec.Cmd
	enc       *supEncoder
	stdinPipe io.WriteCloser
	done      chan struct{}
	lastErr   error

	restarts *restartDispatcher
}

// PreloadedForkConfig bundles constructor arguments analogous to
// ColdSpawnConfig; factory/storage are not passed here because, unlike a
// cold-spawned worker, the supervisor and its children reconstruct their own
// copies when main() re-execs — see reexec.go's doc comment.
type PreloadedForkConfig struct {
	Env             []string
	RestartCooldown time.Duration
}

func NewPreloadedForkManager(log *zap.Logger, n int, cfg PreloadedForkConfig) *PreloadedForkManager {
	binary, err := osExecutableOrArgv0()
	if err != nil {
		binary = ""
	}
	m := &PreloadedForkManager{
		baseManager:     baseManager{registry: NewRegistry(), logs: newLogManager()},
		log:             log.Named("preloaded-fork"),
		n:               n,
		binaryPath:      binary,
		env:             cfg.Env,
		restartCooldown: cfg.RestartCooldown,
		inputQueues:     make([]chan WorkItem, n),
		outputQueues:    make([]chan Result, n),
	}
	for i := range m.inputQueues {
		m.inputQueues[i] = newInputQueue()
		m.outputQueues[i] = newOutputQueue()
	}
	m.restarts = newRestartDispatcher(cfg.RestartCooldown, func(i int) {
		m.sendControl(SignalRestart, i)
	})
	return m
}

func (m *PreloadedForkManager) InputQueue(i int) chan<- WorkItem { return m.inputQueues[i] }
func (m *PreloadedForkManager) OutputQueue(i int) <-chan Result  { return m.outputQueues[i] }

// StartProcesses spawns the supervisor, which spawns every worker in turn;
// individual NewProcess calls after this just signal the supervisor.
func (m *PreloadedForkManager) StartProcesses() error {
	cmd := exec.Command(m.binaryPath)
	cmd.Env = append(append([]string{}, m.env...),
		supervisorModeEnv+"=1",
		fmt.Sprintf("%s=%d", workerCountEnv, m.n),
		fmt.Sprintf("%s=%d", restartCooldownEnv, m.restartCooldown))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.cmd = cmd
	m.enc = newSupEncoder(stdin)
	m.stdinPipe = stdin
	m.done = done
	m.mu.Unlock()

	m.log.Info("supervisor spawned", zap.Int("pid", cmd.Process.Pid), zap.Int("workers", m.n))

	go func() {
		m.lastErr = cmd.Wait()
		close(done)
	}()
	go m.relay(stdout)
	go drainSupervisorStderr(stderr, m.log)
	for i := 0; i < m.n; i++ {
		go m.relayInput(i)
	}
	return nil
}

// relayInput forwards one index's WorkItems to the supervisor, wrapped so it
// can route them to the right child. The queue outlives any one child
// incarnation, so this loop returns only if the queue is closed, which
// Shutdown does not do.
func (m *PreloadedForkManager) relayInput(i int) {
	for item := range m.inputQueues[i] {
		var inner wireFrame
		if item.Terminate {
			inner = wireFrame{Kind: wireTerminate}
		} else {
			inner = wireFrame{Kind: wireRequest, Request: item.Request}
		}
		m.mu.Lock()
		enc := m.enc
		m.mu.Unlock()
		if enc == nil {
			continue
		}
		if err := enc.encode(supFrame{Kind: supKindWorker, Index: i, Worker: inner}); err != nil {
			m.log.Warn("failed to relay work item to supervisor", zap.Int("index", i), zap.Error(err))
		}
	}
}

// relay decodes supFrames from the supervisor's stdout and applies them:
// registry mutations land directly on the registry, worker results land on
// the matching output queue, log lines land on the matching log buffer.
func (m *PreloadedForkManager) relay(r io.Reader) {
	dec := newSupDecoder(r)
	for {
		frame, err := dec.decode()
		if err != nil {
			if err != io.EOF {
				m.log.Warn("supervisor relay decode failed", zap.Error(err))
			}
			return
		}
		switch frame.Kind {
		case supKindRegistry:
			if frame.Registry.Del {
				m.registry.remove(frame.Registry.Index)
			} else {
				m.registry.set(frame.Registry.Index, frame.Registry.Info)
			}
		case supKindWorker:
			if frame.Worker.Kind == wireResult {
				m.outputQueues[frame.Index] <- frame.Worker.Result
			}
		case supKindLog:
			m.logs.Get(frame.Index).Append(frame.Line)
		}
	}
}

func drainSupervisorStderr(r io.Reader, log *zap.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		log.Info("supervisor", zap.String("line", sc.Text()))
	}
}

// NewProcess asks the supervisor to start worker i.
func (m *PreloadedForkManager) NewProcess(i int) { m.sendControl(SignalStart, i) }

// EndProcess asks the supervisor to end worker i and returns without
// waiting; the resulting registry removal arrives later over the
// supervisor's stdout, relayed by relay.
func (m *PreloadedForkManager) EndProcess(i int) { m.sendControl(SignalEnd, i) }

// RestartProcess queues i for restart after the same per-index cooldown as
// ColdSpawnManager and returns immediately; the actual control signal is
// sent later by restartDispatcher's own goroutine, never blocking the
// caller on the cooldown.
func (m *PreloadedForkManager) RestartProcess(i int) {
	m.restarts.Request(i)
}

func (m *PreloadedForkManager) sendControl(signal ProcessControlSignal, index int) {
	m.mu.Lock()
	enc := m.enc
	m.mu.Unlock()
	if enc == nil {
		return
	}
	if err := enc.encode(supFrame{Kind: supKindControl, Control: ControlMessage{Signal: signal, Index: index}}); err != nil {
		m.log.Warn("failed to send control signal", zap.String("signal", string(signal)), zap.Int("index", index), zap.Error(err))
	}
}

func (m *PreloadedForkManager) GetProcessInfo(i int) (ProcessInfo, error) {
	return m.registry.GetProcessInfo(i, m)
}

// ensureHealthy implements §4.4: if the supervisor itself has exited, or is
// a not-yet-reaped zombie, fork mode cannot make progress, so a pending
// GetProcessInfo wait should fail fast with
// SpawnedForkProcessManagerStartFailure rather than spin to its own 60s
// timeout waiting for an entry that will never arrive.
func (m *PreloadedForkManager) ensureHealthy() error {
	m.mu.Lock()
	cmd := m.cmd
	done := m.done
	lastErr := m.lastErr
	m.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-done:
		failure := &SpawnedForkProcessManagerStartFailure{Cause: lastErr}
		m.log.Error("supervisor exited", zap.String("chain", DumpErrorChain(failure)))
		return failure
	default:
	}
	if isZombie(cmd.Process.Pid) {
		return &SpawnedForkProcessManagerStartFailure{Cause: fmt.Errorf("supervisor pid %d is a zombie", cmd.Process.Pid)}
	}
	return nil
}

func (m *PreloadedForkManager) Logs(i, n int) ([]string, bool) { return m.logs.Read(i, n) }

// Shutdown closes the supervisor's stdin, which it reads as end-everything-
// and-exit, then waits for the supervisor itself to be reaped. The restart
// dispatcher is stopped first so it cannot send a control signal to a
// supervisor that is already gone.
func (m *PreloadedForkManager) Shutdown() {
	m.restarts.Close()

	m.mu.Lock()
	cmd := m.cmd
	stdinPipe := m.stdinPipe
	done := m.done
	m.mu.Unlock()
	if cmd == nil {
		return
	}
	if stdinPipe != nil {
		_ = stdinPipe.Close()
	}
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		m.log.Warn("supervisor did not exit voluntarily, terminating")
		_ = cmd.Process.Signal(syscall.SIGTERM)
		<-done
	}
}
