package workerpool

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const processInfoObtainedTimeout = 60 * time.Second

// healthChecker is implemented by each ProcessManager and is invoked by
// Registry.GetProcessInfo while it waits; in fork mode a failure here means
// the supervisor is gone and should abort every pending wait immediately.
type healthChecker interface {
	ensureHealthy() error
}

// Registry is the ProcessInfo registry: a keyed mapping from worker index to
// ProcessInfo, readable from both the coordinator and (in fork mode) the
// supervisor.
//
// In cold-spawn mode the coordinator is the sole writer. In fork mode the
// supervisor is the sole source of writes: it publishes each one as a
// registry frame on its stdout, and PreloadedForkManager's relay applies
// those frames onto the coordinator's copy of entries — a dedicated status
// channel mirrored by the coordinator rather than raw shared memory.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]ProcessInfo

	updates chan registryUpdate // non-nil only when mirroring a remote writer
	once    sync.Once
	sf      singleflight.Group
}

type registryUpdate struct {
	index int
	info  ProcessInfo
	del   bool
}

// NewRegistry returns an empty, coordinator-owned registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]ProcessInfo)}
}

// set records a newly spawned worker's ProcessInfo. Called by whichever
// process actually spawned it.
func (r *Registry) set(index int, info ProcessInfo) {
	r.mu.Lock()
	r.entries[index] = info
	r.mu.Unlock()
}

// remove deletes a confirmed-terminated worker's entry.
func (r *Registry) remove(index int) {
	r.mu.Lock()
	delete(r.entries, index)
	r.mu.Unlock()
}

// get returns the entry for index, if present.
func (r *Registry) get(index int) (ProcessInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.entries[index]
	return info, ok
}

// mirrorFrom starts a goroutine that applies updates published by a remote
// writer (the supervisor, over its status channel) onto this registry's
// local copy. Safe to call once; later calls are no-ops.
func (r *Registry) mirrorFrom(updates <-chan registryUpdate) {
	r.once.Do(func() {
		go func() {
			for u := range updates {
				if u.del {
					r.remove(u.index)
					continue
				}
				r.set(u.index, u.info)
			}
		}()
	})
}

// GetProcessInfo blocks until entry index appears, the timeout elapses, or
// hc reports an unhealthy condition. Concurrent callers waiting on the same
// index are coalesced via singleflight so only one of them actually polls;
// the others simply receive its result.
func (r *Registry) GetProcessInfo(index int, hc healthChecker) (ProcessInfo, error) {
	v, err, _ := r.sf.Do(strconv.Itoa(index), func() (any, error) {
		start := time.Now()
		for {
			if hc != nil {
				if err := hc.ensureHealthy(); err != nil {
					return ProcessInfo{}, err
				}
			}
			if info, ok := r.get(index); ok {
				return info, nil
			}
			if time.Since(start) > processInfoObtainedTimeout {
				return ProcessInfo{}, &ProcessInfoObtainedTimeout{TimeoutSeconds: int(processInfoObtainedTimeout.Seconds())}
			}
			time.Sleep(1 * time.Second)
		}
	})
	if err != nil {
		return ProcessInfo{}, err
	}
	return v.(ProcessInfo), nil
}
