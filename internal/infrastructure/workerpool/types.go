package workerpool

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProcessControlSignal is the set of verbs the coordinator may push onto the
// ControlQueue in preloaded-fork mode. The supervisor translates each into a
// new_process / end_process / restart_process call.
type ProcessControlSignal string

const (
	SignalStart   ProcessControlSignal = "start"
	SignalRestart ProcessControlSignal = "restart"
	SignalEnd     ProcessControlSignal = "end"
)

// ControlMessage is one entry on the ControlQueue: a signal paired with the
// worker index it targets.
type ControlMessage struct {
	Signal ProcessControlSignal
	Index  int
}

// ProcessInfo identifies one live worker. It is created when the worker
// successfully spawns and removed on confirmed termination.
type ProcessInfo struct {
	Index int
	PID   int
	Name  string
}

// Request is one line of work handed to a worker. CorrelationID is chosen by
// the coordinator before enqueue and is never reused.
type Request struct {
	CorrelationID uuid.UUID
	Payload       []byte
}

// Result is the outcome of executing one Request: exactly one of Payload or
// Err is set.
type Result struct {
	CorrelationID uuid.UUID
	Payload       []byte
	Err           *JsonSerializedException
}

// Executor runs one opaque request and returns an opaque result, or an error.
// Request/result bytes are meaningless to the pool; only the flow
// interpreter (out of the core's scope) knows how to decode them.
type Executor interface {
	Execute(ctx context.Context, payload []byte) ([]byte, error)
}

// RunStorage is the persistence backend for execution bookkeeping. It is
// consumed only as a constructor argument to an ExecutorFactory.
type RunStorage interface {
	RecordStart(runID string, at time.Time) error
	RecordEnd(runID string, at time.Time, err error) error
}

// ExecutorFactory builds an Executor bound to a RunStorage. It must be
// serializable, or reconstructible from scratch, inside a cold-spawned
// process: in practice this means a small value type plus package-level
// construction logic, never a closure over live connections.
type ExecutorFactory interface {
	Create(storage RunStorage) (Executor, error)
}

// LogContextInitializer is a zero-argument, serializable side-effectful
// function replayed in each subprocess before any user code runs (e.g. to
// reattach a tracer or reconfigure a logger sink).
type LogContextInitializer func() error

// OperationContext is a snapshot of string tags attached to a logical
// operation for telemetry; it must be propagated across process boundaries
// by value since thread-locals do not survive a subprocess exec.
type OperationContext map[string]string
