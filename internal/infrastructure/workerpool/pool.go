package workerpool

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// queueManager is the subset of ProcessManager plus queue access that Pool
// needs. Both ColdSpawnManager and PreloadedForkManager satisfy it.
type queueManager interface {
	ProcessManager
	InputQueue(index int) chan<- WorkItem
	OutputQueue(index int) <-chan Result
}

// Pool is the coordinator-facing entry point: submit one line of work to a
// given worker index, or many at once, without touching the underlying
// ProcessManager's queues directly.
type Pool struct {
	manager queueManager
	log     *zap.Logger

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewPool(log *zap.Logger, manager queueManager) *Pool {
	return &Pool{manager: manager, log: log.Named("pool"), locks: make(map[int]*sync.Mutex)}
}

func (p *Pool) Start() error        { return p.manager.StartProcesses() }
func (p *Pool) Shutdown()           { p.manager.Shutdown() }
func (p *Pool) Restart(index int)   { p.manager.RestartProcess(index) }
func (p *Pool) NewWorker(index int) { p.manager.NewProcess(index) }
func (p *Pool) EndWorker(index int) { p.manager.EndProcess(index) }

func (p *Pool) ProcessInfo(index int) (ProcessInfo, error) { return p.manager.GetProcessInfo(index) }
func (p *Pool) Logs(index, n int) ([]string, bool)         { return p.manager.Logs(index, n) }

func (p *Pool) indexLock(index int) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[index]
	if !ok {
		l = &sync.Mutex{}
		p.locks[index] = l
	}
	return l
}

// Submit enqueues payload on worker index and blocks for its Result.
// Requests to the same index are serialized: InputQueue[i]/OutputQueue[i]
// is one pipe shared by whichever single worker currently occupies index i,
// so two concurrent Submits there would otherwise race over whose Result is
// whose.
func (p *Pool) Submit(ctx context.Context, index int, payload []byte) ([]byte, error) {
	lock := p.indexLock(index)
	lock.Lock()
	defer lock.Unlock()

	req := Request{CorrelationID: uuid.New(), Payload: payload}

	select {
	case p.manager.InputQueue(index) <- WorkItem{Request: req}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-p.manager.OutputQueue(index):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BatchItem is one line of a SubmitBatch call.
type BatchItem struct {
	Index   int
	Payload []byte
}

// BatchResult is the per-item outcome of a SubmitBatch call, positional with
// the input slice.
type BatchResult struct {
	Payload []byte
	Err     error
}

// SubmitBatch submits every item concurrently, bounded by concurrency (<= 0
// means unbounded), and returns one BatchResult per item in input order. A
// single item's failure does not cancel the others — each item's outcome is
// independent, unlike errgroup's usual fail-fast behavior.
func (p *Pool) SubmitBatch(ctx context.Context, items []BatchItem, concurrency int) []BatchResult {
	results := make([]BatchResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			payload, err := p.Submit(gctx, item.Index, item.Payload)
			results[i] = BatchResult{Payload: payload, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
