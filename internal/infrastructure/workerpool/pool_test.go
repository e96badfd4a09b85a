package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeManager is a minimal queueManager: it echoes back whatever payload it
// receives on a given index with "-done" appended, simulating a
// worker without spawning a real process.
type fakeManager struct {
	in  map[int]chan WorkItem
	out map[int]chan Result
}

func newFakeManager(indexes ...int) *fakeManager {
	m := &fakeManager{in: map[int]chan WorkItem{}, out: map[int]chan Result{}}
	for _, i := range indexes {
		in := make(chan WorkItem, 4)
		out := make(chan Result, 4)
		m.in[i] = in
		m.out[i] = out
		go func(in chan WorkItem, out chan Result) {
			for item := range in {
				if item.Terminate {
					return
				}
				out <- Result{CorrelationID: item.Request.CorrelationID, Payload: append(item.Request.Payload, []byte("-done")...)}
			}
		}(in, out)
	}
	return m
}

func (m *fakeManager) StartProcesses() error { return nil }
func (m *fakeManager) NewProcess(int)        {}
func (m *fakeManager) EndProcess(int)        {}
func (m *fakeManager) RestartProcess(int)    {}
func (m *fakeManager) Shutdown()             {}
func (m *fakeManager) GetProcessInfo(index int) (ProcessInfo, error) {
	return ProcessInfo{Index: index}, nil
}
func (m *fakeManager) Logs(index, n int) ([]string, bool) { return nil, false }
func (m *fakeManager) InputQueue(index int) chan<- WorkItem { return m.in[index] }
func (m *fakeManager) OutputQueue(index int) <-chan Result  { return m.out[index] }

func TestPoolSubmitRoundTrips(t *testing.T) {
	m := newFakeManager(0)
	p := NewPool(zap.NewNop(), m)

	result, err := p.Submit(context.Background(), 0, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi-done", string(result))
}

func TestPoolSubmitRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := NewPool(zap.NewNop(), &blockingManager{})
	_, err := p.Submit(ctx, 0, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, err)
}

// blockingManager never accepts a WorkItem, so Submit must block on ctx.Done.
type blockingManager struct{}

func (m *blockingManager) InputQueue(index int) chan<- WorkItem { return make(chan WorkItem) }
func (m *blockingManager) OutputQueue(index int) <-chan Result  { return make(chan Result) }
func (m *blockingManager) StartProcesses() error                { return nil }
func (m *blockingManager) NewProcess(int)                       {}
func (m *blockingManager) EndProcess(int)                       {}
func (m *blockingManager) RestartProcess(int)                   {}
func (m *blockingManager) Shutdown()                             {}
func (m *blockingManager) GetProcessInfo(index int) (ProcessInfo, error) {
	return ProcessInfo{}, nil
}
func (m *blockingManager) Logs(index, n int) ([]string, bool) { return nil, false }

func TestPoolSubmitBatchIsIndependentPerItem(t *testing.T) {
	m := newFakeManager(0, 1)
	p := NewPool(zap.NewNop(), m)

	items := []BatchItem{
		{Index: 0, Payload: []byte("a")},
		{Index: 1, Payload: []byte("b")},
	}
	results := p.SubmitBatch(context.Background(), items, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "a-done", string(results[0].Payload))
	assert.Equal(t, "b-done", string(results[1].Payload))
}

func TestPoolSubmitSerializesSameIndex(t *testing.T) {
	m := newFakeManager(0)
	p := NewPool(zap.NewNop(), m)

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			payload := uuid.NewString()[:4]
			result, err := p.Submit(context.Background(), 0, []byte(payload))
			assert.NoError(t, err)
			assert.Equal(t, payload+"-done", string(result))
			done <- struct{}{}
			_ = i
		}(i)
	}
	<-done
	<-done
}
