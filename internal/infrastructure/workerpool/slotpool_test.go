package workerpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotPoolBoundsConcurrentAcquires(t *testing.T) {
	p := newSlotPool(2)

	p.acquire(1)
	p.acquire(2)
	assert.Equal(t, 2, p.current())

	acquired := make(chan struct{})
	go func() {
		p.acquire(3)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked at capacity 2")
	case <-time.After(50 * time.Millisecond):
	}

	p.release(1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("third acquire should unblock once a slot frees")
	}
	assert.Equal(t, 2, p.current())

	p.release(2)
	p.release(3)
	assert.Equal(t, 0, p.current())
}

func TestSlotPoolUnboundedNeverBlocks(t *testing.T) {
	p := newSlotPool(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := uint64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.acquire(i)
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unbounded pool should never block")
	}
	assert.Equal(t, 0, p.current())
}

func TestSlotPoolReleaseUnheldIsNoop(t *testing.T) {
	p := newSlotPool(1)
	p.release(42)
	require.Equal(t, 0, p.current())
}
