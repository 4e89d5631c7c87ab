package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorCoalescesWhileInFlight(t *testing.T) {
	c := NewCursor("c1", 10)
	assert.True(t, c.begin())
	assert.False(t, c.begin(), "second load while one is in flight must not start")
	c.complete(10, "conv:c1:msg:k10")
	assert.True(t, c.begin(), "after completion the next page may start")
}

func TestCursorShortPageMarksExhausted(t *testing.T) {
	c := NewCursor("c1", 10)
	assert.True(t, c.begin())
	c.complete(4, "conv:c1:msg:k4")
	assert.True(t, c.Exhausted())
	assert.False(t, c.begin(), "loads after exhaustion are no-ops")
}

func TestCursorFullPageNotExhausted(t *testing.T) {
	c := NewCursor("c1", 10)
	c.begin()
	c.complete(10, "conv:c1:msg:k10")
	assert.False(t, c.Exhausted())
}

func TestCursorEmptyPageExhausts(t *testing.T) {
	c := NewCursor("c1", 10)
	c.begin()
	c.complete(0, "")
	assert.True(t, c.Exhausted())
}

func TestCursorAbortAllowsRetry(t *testing.T) {
	c := NewCursor("c1", 10)
	assert.True(t, c.begin())
	c.abort()
	assert.False(t, c.Exhausted())
	assert.True(t, c.begin(), "a failed load must not poison the cursor")
}

func TestCursorDefaultPageSize(t *testing.T) {
	c := NewCursor("c1", 0)
	assert.Equal(t, PageSize, c.pageSize)
}
