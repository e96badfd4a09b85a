package workerpool

import (
	"sync"
	"time"
)

// restartDispatcher is the single goroutine allowed to call next/pop on a
// restartScheduler. schedule's heap is not safe for concurrent next/pop
// callers racing each other (pop removes whatever is at the head, not
// necessarily the caller's own entry), so every manager that wants
// cooldown-damped restarts funnels requests through one of these instead of
// touching the scheduler directly. Request is fire-and-forget: it only ever
// takes the scheduler's lock long enough to push an entry, matching the
// pool's non-blocking control-signal contract.
type restartDispatcher struct {
	mu       sync.Mutex
	sched    *restartScheduler
	cooldown time.Duration
	restart  func(index int)

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newRestartDispatcher(cooldown time.Duration, restart func(index int)) *restartDispatcher {
	d := &restartDispatcher{
		sched:    newRestartScheduler(),
		cooldown: cooldown,
		restart:  restart,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Request queues index for restart after the dispatcher's cooldown and
// returns immediately; the restart itself happens later on the dispatcher
// goroutine.
func (d *restartDispatcher) Request(index int) {
	d.mu.Lock()
	d.sched.schedule(index, d.cooldown)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops the dispatcher goroutine and waits for it to exit. Pending
// scheduled restarts are dropped.
func (d *restartDispatcher) Close() {
	close(d.stop)
	<-d.done
}

func (d *restartDispatcher) run() {
	defer close(d.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	disarm := func() {
		if !armed {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		armed = false
	}

	rearm := func() {
		disarm()
		d.mu.Lock()
		_, when, ok := d.sched.next()
		d.mu.Unlock()
		if !ok {
			return
		}
		wait := time.Until(when)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
		armed = true
	}

	for {
		select {
		case <-d.stop:
			return
		case <-d.wake:
			rearm()
		case <-timer.C:
			armed = false
			d.mu.Lock()
			index, _, ok := d.sched.next()
			if ok {
				d.sched.pop()
			}
			d.mu.Unlock()
			if ok {
				d.restart(index)
			}
			rearm()
		}
	}
}
