package workerpool

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// SnapshotAwareFactory is implemented by an ExecutorFactory that knows how to
// reuse a warm snapshot written by the fork supervisor instead of redoing an
// expensive load from scratch — the Go-native replacement for copy-on-write
// fork inheritance (see SPEC_FULL.md §2). A factory that does not implement
// this still works under PreloadedForkManager: its children ignore the
// snapshot and call Create.
type SnapshotAwareFactory interface {
	ExecutorFactory
	CreateFromSnapshot(path string, storage RunStorage) (Executor, error)
}

// WorkerTarget is the function every worker process runs, reading one
// Request at a time from its stdin pipe and writing one Result at a time to
// its stdout pipe until it observes the terminate sentinel.
//
// Contract (§4.2):
//  1. install a SIGINT handler so the worker exits cleanly;
//  2. invoke logInit, if provided;
//  3. restore the operation context snapshot;
//  4. construct an executor via factory (using the warm snapshot when one is
//     supplied and the factory supports it);
//  5. loop: dequeue, execute, serialize any error, enqueue the outcome —
//     never letting an error escape the loop;
//  6. flush and return zero on loop exit.
func WorkerTarget(factory ExecutorFactory, storage RunStorage, logInit LogContextInitializer, log *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT)
	defer stop()

	in := newWireDecoder(os.Stdin)
	out := newWireEncoder(os.Stdout)

	boot, err := in.decode()
	if err != nil || boot.Kind != wireBootstrap {
		fmt.Fprintln(os.Stderr, "worker: missing bootstrap frame")
		return 1
	}

	if logInit != nil {
		if err := logInit(); err != nil {
			fmt.Fprintf(os.Stderr, "worker: log context init failed: %v\n", err)
		}
	}

	restoreOperationContext(boot.Bootstrap.OperationContext)

	executor, err := createExecutor(factory, storage, boot.Bootstrap.SnapshotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: executor creation failed: %v\n", err)
		return 1
	}

	runLoop(ctx, executor, in, out, log)
	return 0
}

func createExecutor(factory ExecutorFactory, storage RunStorage, snapshotPath string) (Executor, error) {
	if snapshotPath != "" {
		if sf, ok := factory.(SnapshotAwareFactory); ok {
			return sf.CreateFromSnapshot(snapshotPath, storage)
		}
	}
	return factory.Create(storage)
}

// runLoop drains frames until the terminate sentinel or an unrecoverable
// pipe error. Exactly one Result is produced per dequeued Request; a
// terminated-before-dequeue Request is simply never seen here — that window
// is the one the coordinator must accept per §9's open question.
func runLoop(ctx context.Context, executor Executor, in *wireDecoder, out *wireEncoder, log *zap.Logger) {
	for {
		frame, err := in.decode()
		if err != nil {
			if err != io.EOF {
				log.Warn("worker: input pipe read failed", zap.Error(err))
			}
			return
		}

		switch frame.Kind {
		case wireTerminate:
			return

		case wireRequest:
			result := executeOne(ctx, executor, frame.Request, log)
			if err := out.encode(wireFrame{Kind: wireResult, Result: result}); err != nil {
				log.Warn("worker: output pipe write failed", zap.Error(err))
				return
			}

		default:
			log.Warn("worker: unexpected frame kind", zap.Any("kind", frame.Kind))
		}
	}
}

// executeOne invokes the executor and converts any error into a structured
// JsonSerializedException, so a panic or thrown error never escapes the
// worker loop (§4.2, step 5).
func executeOne(ctx context.Context, executor Executor, req Request, log *zap.Logger) (result Result) {
	result.CorrelationID = req.CorrelationID

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker: recovered from panic executing request",
				zap.String("correlation_id", req.CorrelationID.String()),
				zap.Any("panic", r))
			result.Err = &JsonSerializedException{
				Code:    "UnexpectedError",
				Message: fmt.Sprintf("panic: %v", r),
			}
			result.Payload = nil
		}
	}()

	payload, err := executor.Execute(ctx, req.Payload)
	if err != nil {
		result.Err = &JsonSerializedException{Code: "ExecutionError", Message: err.Error()}
		return result
	}
	result.Payload = payload
	return result
}
