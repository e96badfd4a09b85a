package workerpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestartSchedulerOrdersBySoonest(t *testing.T) {
	s := newRestartScheduler()
	s.schedule(1, 50*time.Millisecond)
	s.schedule(2, 10*time.Millisecond)
	s.schedule(3, 30*time.Millisecond)

	index, _, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, 2, index)

	s.pop()
	index, _, ok = s.next()
	require.True(t, ok)
	assert.Equal(t, 3, index)

	s.pop()
	index, _, ok = s.next()
	require.True(t, ok)
	assert.Equal(t, 1, index)

	s.pop()
	_, _, ok = s.next()
	assert.False(t, ok)
}

func TestRestartSchedulerScheduleReplacesPending(t *testing.T) {
	s := newRestartScheduler()
	s.schedule(1, time.Hour)
	s.schedule(1, time.Millisecond)

	require.Len(t, s.byIndex, 1)
	index, when, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, 1, index)
	assert.True(t, when.Before(time.Now().Add(time.Second)))
}

func TestRestartSchedulerCancel(t *testing.T) {
	s := newRestartScheduler()
	s.schedule(1, time.Minute)
	s.schedule(2, time.Minute)

	s.cancel(1)

	_, ok := s.byIndex[1]
	assert.False(t, ok)
	index, _, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, 2, index)
}

func TestRestartSchedulerCancelUnknownIsNoop(t *testing.T) {
	s := newRestartScheduler()
	s.cancel(99)
	_, _, ok := s.next()
	assert.False(t, ok)
}
