package workerpool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogBufferReadNewestFirst(t *testing.T) {
	var b logBuffer
	b.Append("one")
	b.Append("two")
	b.Append("three")

	assert.Equal(t, []string{"three", "two", "one"}, b.Read(3))
	assert.Equal(t, []string{"three", "two"}, b.Read(2))
}

func TestLogBufferReadOnEmptyIsNil(t *testing.T) {
	var b logBuffer
	assert.Nil(t, b.Read(5))
}

func TestLogBufferWrapsAfterCapacity(t *testing.T) {
	var b logBuffer
	for i := 0; i < 550; i++ {
		b.Append(fmt.Sprintf("line-%d", i))
	}

	out := b.Read(500)
	assert.Len(t, out, 500)
	assert.Equal(t, "line-549", out[0])
	assert.Equal(t, "line-50", out[499])
}

func TestLogManagerReadMissingIndex(t *testing.T) {
	m := newLogManager()
	lines, ok := m.Read(9, 10)
	assert.False(t, ok)
	assert.Nil(t, lines)
}

func TestLogManagerGetCreatesLazily(t *testing.T) {
	m := newLogManager()
	m.Get(1).Append("hello")

	lines, ok := m.Read(1, 10)
	assert.True(t, ok)
	assert.Equal(t, []string{"hello"}, lines)
}
