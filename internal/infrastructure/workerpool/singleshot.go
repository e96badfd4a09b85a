//go:build linux

package workerpool

import (
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// SingleShotInvoker runs one Request in a freshly spawned, disposable
// subprocess — isolation without a standing worker index. It is the
// SpawnProcessManager counterpart to the indexed pool: used for work that
// should not share a crash domain with anything else, and that does not
// justify keeping a process warm afterward.
//
// Logging contract (mirrors the original's exact call counts, §8):
//   - one info log when an execution starts;
//   - a second info log only when it completes successfully;
//   - an error log only on timeout;
//   - a caught in-target exception or an unexpected nonzero exit logs
//     nothing beyond the initial start — the structured error returned to
//     the caller carries the detail instead.
type SingleShotInvoker struct {
	binaryPath string
	env        []string
	slots      *slotPool
	log        *zap.Logger
	seq        uint64
}

// SingleShotConfig bundles constructor arguments. MaxConcurrent <= 0 means
// unbounded.
type SingleShotConfig struct {
	Env           []string
	MaxConcurrent int
}

func NewSingleShotInvoker(log *zap.Logger, cfg SingleShotConfig) *SingleShotInvoker {
	binary, _ := osExecutableOrArgv0()
	return &SingleShotInvoker{
		binaryPath: binary,
		env:        cfg.Env,
		slots:      newSlotPool(cfg.MaxConcurrent),
		log:        log.Named("single-shot"),
	}
}

// Invoke runs req to completion in a disposable child, reconstructing the
// executor there via factory/storage exactly as a cold-spawned worker would
// (main() builds the same factory in every process — see reexec.go). It
// blocks until the child delivers a result, the timeout elapses, or the
// child exits without one.
func (m *SingleShotInvoker) Invoke(opCtx OperationContext, req Request, timeout time.Duration) ([]byte, error) {
	id := atomic.AddUint64(&m.seq, 1)
	m.slots.acquire(id)
	defer m.slots.release(id)

	m.log.Info("single-shot execution started", zap.String("correlation_id", req.CorrelationID.String()))

	cmd := exec.Command(m.binaryPath)
	cmd.Env = append(append([]string{}, m.env...), workerModeEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &UnexpectedError{Message: err.Error(), Target: TargetExecutor}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &UnexpectedError{Message: err.Error(), Target: TargetExecutor}
	}
	if err := cmd.Start(); err != nil {
		return nil, &UnexpectedError{Message: err.Error(), Target: TargetExecutor}
	}

	enc := newWireEncoder(stdin)
	dec := newWireDecoder(stdout)

	_ = enc.encode(wireFrame{Kind: wireBootstrap, Bootstrap: bootstrapPayload{OperationContext: opCtx}})
	_ = enc.encode(wireFrame{Kind: wireRequest, Request: req})
	_ = enc.encode(wireFrame{Kind: wireTerminate})

	resultCh := make(chan wireFrame, 1)
	exitCh := make(chan error, 1)
	go func() {
		for {
			frame, err := dec.decode()
			if err != nil {
				return
			}
			if frame.Kind == wireResult {
				resultCh <- frame
				return
			}
		}
	}()
	go func() { exitCh <- cmd.Wait() }()

	select {
	case frame := <-resultCh:
		<-exitCh // the child still has to drain its terminate frame and exit; reap it
		if frame.Result.Err != nil {
			return nil, frame.Result.Err
		}
		m.log.Info("single-shot execution completed", zap.String("correlation_id", req.CorrelationID.String()))
		return frame.Result.Payload, nil

	case <-exitCh:
		// Process ended without ever producing a Result: an uncaught panic
		// outside executeOne's recover, or a killed/crashed process.
		return nil, &UnexpectedError{Message: "Unexpected error occurred while executing the request", Target: TargetExecutor}

	case <-time.After(timeout):
		m.log.Error("single-shot execution timed out", zap.String("correlation_id", req.CorrelationID.String()),
			zap.Duration("timeout", timeout))
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-exitCh
		return nil, &ExecutionTimeoutError{TimeoutSeconds: timeout.Seconds(), Target: TargetExecutor}
	}
}
