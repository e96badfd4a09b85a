//go:build linux

package workerpool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// workerCountEnv tells a re-exec'd supervisor how many children to spawn at
// startup — the fork-mode analogue of len(input_queues) in the original,
// which the supervisor there received directly since it ran in the same
// address space as the queues it was handed.
const workerCountEnv = "LINEPOOL_WORKER_COUNT"

// restartCooldownEnv carries the coordinator's restart cooldown across the
// re-exec boundary so the supervisor's own restartScheduler damps
// SignalRestart the same way ColdSpawnManager damps its restarts, rather
// than restarting a crash-looping child with no delay at all.
const restartCooldownEnv = "LINEPOOL_RESTART_COOLDOWN_NS"

const defaultSupervisorRestartCooldown = 2 * time.Second

type supervisorChild struct {
	cmd   *exec.Cmd
	stdin *wireEncoder
	done  chan struct{}
}

// runSupervisorMain is the body of the re-exec'd supervisor process: build
// (at most once) a warm snapshot of the executor's expensive state, spawn
// one cold-exec'd child per index, and relay control signals, registry
// updates, worker traffic, and log lines between the coordinator and those
// children over the supervisor's own stdin/stdout.
//
// Mirrors create_spawned_fork_process_manager's main loop: reap zombies,
// attempt to dequeue a control signal with a bounded wait, exit once no
// children remain.
func runSupervisorMain(factory ExecutorFactory, storage RunStorage, logInit LogContextInitializer, log *zap.Logger) int {
	_ = logInit // only children replay this, via their own WorkerTarget invocation
	log = log.Named("supervisor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT)
	defer stop()

	n, _ := strconv.Atoi(os.Getenv(workerCountEnv))
	if n <= 0 {
		n = 1
	}

	restartCooldown := defaultSupervisorRestartCooldown
	if ns, err := strconv.ParseInt(os.Getenv(restartCooldownEnv), 10, 64); err == nil && ns > 0 {
		restartCooldown = time.Duration(ns)
	}
	sched := newRestartScheduler()

	binary, err := os.Executable()
	if err != nil {
		binary = os.Args[0]
	}

	var snapshotPath string
	if sf, ok := factory.(Snapshotter); ok {
		data, err := sf.Snapshot()
		if err != nil {
			log.Error("failed to build warm snapshot, children will cold-create instead", zap.Error(err))
		} else if path, err := writeWarmSnapshot(data); err != nil {
			log.Error("failed to persist warm snapshot, children will cold-create instead", zap.Error(err))
		} else {
			snapshotPath = path
			defer removeWarmSnapshot(path)
		}
	} else {
		log.Warn("executor factory does not support snapshotting; preloaded fork degrades to per-child cold create")
	}

	out := newSupEncoder(os.Stdout)

	var mu sync.Mutex
	children := make(map[int]*supervisorChild)

	spawnChild := func(i int) {
		cmd := exec.Command(binary)
		cmd.Env = append(os.Environ(), workerModeEnv+"=1")
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}

		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Warn("failed to create child stdin pipe", zap.Int("index", i), zap.Error(err))
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Warn("failed to create child stdout pipe", zap.Int("index", i), zap.Error(err))
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Warn("failed to create child stderr pipe", zap.Int("index", i), zap.Error(err))
			return
		}
		if err := cmd.Start(); err != nil {
			log.Warn("failed to spawn child", zap.Int("index", i), zap.Error(err))
			return
		}

		pid := cmd.Process.Pid
		_ = out.encode(supFrame{Kind: supKindRegistry, Registry: registryUpdateMsg{
			Index: i, Info: ProcessInfo{Index: i, PID: pid, Name: fmt.Sprintf("worker-%d", i)},
		}})
		log.Info("child spawned", zap.Int("index", i), zap.Int("pid", pid))

		enc := newWireEncoder(stdin)
		if err := enc.encode(wireFrame{Kind: wireBootstrap, Bootstrap: bootstrapPayload{SnapshotPath: snapshotPath}}); err != nil {
			log.Warn("failed to send bootstrap frame", zap.Int("index", i), zap.Error(err))
		}

		done := make(chan struct{})
		child := &supervisorChild{cmd: cmd, stdin: enc, done: done}
		mu.Lock()
		children[i] = child
		mu.Unlock()

		go relayChildOutput(stdout, i, out, log)
		go relayChildStderr(stderr, i, out)
		go func() {
			err := cmd.Wait()
			close(done)
			mu.Lock()
			delete(children, i)
			mu.Unlock()
			if err != nil {
				log.Warn("child exited", zap.Int("index", i), zap.Error(err))
			}
			_ = out.encode(supFrame{Kind: supKindRegistry, Registry: registryUpdateMsg{Index: i, Del: true}})
		}()
	}

	endChild := func(i int) {
		mu.Lock()
		child, ok := children[i]
		if ok {
			_ = child.stdin.encode(wireFrame{Kind: wireTerminate})
		}
		mu.Unlock()
		if !ok {
			return
		}
		select {
		case <-child.done:
		case <-time.After(10 * time.Second):
			log.Warn("child did not exit voluntarily, terminating", zap.Int("index", i))
			_ = child.cmd.Process.Signal(syscall.SIGTERM)
			<-child.done
		}
	}

	endAll := func() {
		mu.Lock()
		indices := make([]int, 0, len(children))
		for i := range children {
			indices = append(indices, i)
		}
		mu.Unlock()
		for _, i := range indices {
			endChild(i)
		}
	}

	for i := 0; i < n; i++ {
		spawnChild(i)
	}

	controlCh := make(chan ControlMessage, 32)
	go func() {
		in := newSupDecoder(os.Stdin)
		for {
			frame, err := in.decode()
			if err != nil {
				close(controlCh)
				return
			}
			switch frame.Kind {
			case supKindControl:
				controlCh <- frame.Control
			case supKindWorker:
				mu.Lock()
				if child, ok := children[frame.Index]; ok {
					_ = child.stdin.encode(frame.Worker)
				}
				mu.Unlock()
			}
		}
	}()

	for {
		select {
		case msg, ok := <-controlCh:
			if !ok {
				endAll()
				return 0
			}
			switch msg.Signal {
			case SignalStart:
				spawnChild(msg.Index)
			case SignalEnd:
				sched.cancel(msg.Index)
				endChild(msg.Index)
			case SignalRestart:
				sched.schedule(msg.Index, restartCooldown)
			}
		case <-ctx.Done():
			endAll()
			return 0
		case <-time.After(200 * time.Millisecond):
		}

		for {
			i, when, ok := sched.next()
			if !ok || time.Now().Before(when) {
				break
			}
			sched.pop()
			endChild(i)
			spawnChild(i)
		}

		mu.Lock()
		alive := len(children)
		mu.Unlock()
		if alive == 0 {
			return 0
		}
	}
}

// relayChildOutput decodes Results off one child's stdout and forwards them
// to the coordinator, tagged with the child's index.
func relayChildOutput(r io.Reader, index int, out *supEncoder, log *zap.Logger) {
	dec := newWireDecoder(r)
	for {
		frame, err := dec.decode()
		if err != nil {
			if err != io.EOF {
				log.Warn("child output decode failed", zap.Int("index", index), zap.Error(err))
			}
			return
		}
		if frame.Kind == wireResult {
			_ = out.encode(supFrame{Kind: supKindWorker, Index: index, Worker: frame})
		}
	}
}

// relayChildStderr forwards one child's stderr, line by line, to the
// coordinator so its log manager can serve Logs(index, n) the same way it
// would under ColdSpawnManager.
func relayChildStderr(r io.Reader, index int, out *supEncoder) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		_ = out.encode(supFrame{Kind: supKindLog, Index: index, Line: sc.Text()})
	}
}
