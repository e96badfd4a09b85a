//go:build linux

package workerpool

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// singleShotTestModeEnv picks the scenario a re-exec'd test binary acts out
// when it's been told (via workerModeEnv) to run as a worker.
const singleShotTestModeEnv = "LINEPOOL_SINGLESHOT_TEST_MODE"

// TestMain intercepts the re-exec: SingleShotInvoker spawns the test binary
// itself with workerModeEnv set, exactly as it would its real sibling binary
// (os.Executable() resolves to the compiled test binary under `go test`).
func TestMain(m *testing.M) {
	if IsWorkerProcess() {
		factory := singleShotTestFactory{mode: os.Getenv(singleShotTestModeEnv)}
		os.Exit(WorkerTarget(factory, nil, nil, zap.NewNop()))
	}
	os.Exit(m.Run())
}

type singleShotTestFactory struct{ mode string }

func (f singleShotTestFactory) Create(RunStorage) (Executor, error) {
	return singleShotTestExecutor{mode: f.mode}, nil
}

type singleShotTestExecutor struct{ mode string }

func (e singleShotTestExecutor) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	switch e.mode {
	case "timeout":
		time.Sleep(5 * time.Second)
		return []byte(`"late"`), nil
	case "exception":
		return nil, errors.New("boom")
	case "crash":
		os.Exit(1)
	}
	return []byte(`"ok"`), nil
}

func newSingleShotTestInvoker(t *testing.T, mode string) (*SingleShotInvoker, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)
	inv := NewSingleShotInvoker(log, SingleShotConfig{
		Env: append(os.Environ(), singleShotTestModeEnv+"="+mode),
	})
	return inv, logs
}

func testRequest() Request {
	return Request{CorrelationID: uuid.New(), Payload: []byte("{}")}
}

// TestSingleShotInvokerCompleted mirrors test_process_utils.py's completed
// scenario: exactly two info logs (start, completed), no error log.
func TestSingleShotInvokerCompleted(t *testing.T) {
	inv, logs := newSingleShotTestInvoker(t, "ok")

	out, err := inv.Invoke(nil, testRequest(), 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(out))

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.InfoLevel).Len())
}

// TestSingleShotInvokerTimeout mirrors the timeout scenario: one info log
// (start) plus one error log, and an ExecutionTimeoutError back to the
// caller.
func TestSingleShotInvokerTimeout(t *testing.T) {
	inv, logs := newSingleShotTestInvoker(t, "timeout")

	_, err := inv.Invoke(nil, testRequest(), 200*time.Millisecond)
	require.Error(t, err)

	var timeoutErr *ExecutionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "Execution timeout for exceeding 0.2 seconds", timeoutErr.Error())

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.InfoLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

// TestSingleShotInvokerCaughtException mirrors the caught-exception
// scenario: the executor's error surfaces as a JsonSerializedException with
// no logging beyond the initial start.
func TestSingleShotInvokerCaughtException(t *testing.T) {
	inv, logs := newSingleShotTestInvoker(t, "exception")

	_, err := inv.Invoke(nil, testRequest(), 5*time.Second)
	require.Error(t, err)

	var jse *JsonSerializedException
	require.ErrorAs(t, err, &jse)
	assert.Equal(t, "ExecutionError", jse.Code)
	assert.Contains(t, jse.Message, "boom")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

// TestSingleShotInvokerUnexpectedExit mirrors the scenario where the child
// exits without ever producing a Result (a crash outside executeOne's own
// recover): one info log, no error log, and an UnexpectedError back to the
// caller.
func TestSingleShotInvokerUnexpectedExit(t *testing.T) {
	inv, logs := newSingleShotTestInvoker(t, "crash")

	_, err := inv.Invoke(nil, testRequest(), 5*time.Second)
	require.Error(t, err)

	var unexpected *UnexpectedError
	require.ErrorAs(t, err, &unexpected)

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}
