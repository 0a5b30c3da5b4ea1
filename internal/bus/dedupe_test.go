package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupeCacheSeen(t *testing.T) {
	c := NewDedupeCache(time.Minute, 10)

	assert.False(t, c.Seen("t1:msg-1"), "first sighting is fresh")
	assert.True(t, c.Seen("t1:msg-1"), "second sighting is a duplicate")
	assert.False(t, c.Seen("t2:msg-1"), "tenant prefix isolates keys")
}

func TestDedupeCacheEmptyKey(t *testing.T) {
	c := NewDedupeCache(time.Minute, 10)
	assert.False(t, c.Seen(""))
	assert.False(t, c.Seen(""), "empty keys are never recorded")
}

func TestDedupeCacheForget(t *testing.T) {
	c := NewDedupeCache(time.Minute, 10)
	assert.False(t, c.Seen("t1:msg-1"))
	c.Forget("t1:msg-1")
	assert.False(t, c.Seen("t1:msg-1"), "forgotten key processes again")
}

func TestDedupeCacheEviction(t *testing.T) {
	c := NewDedupeCache(time.Minute, 2)
	c.Seen("a")
	c.Seen("b")
	c.Seen("c") // evicts a
	assert.False(t, c.Seen("a"), "oldest entry evicted at capacity")
	assert.True(t, c.Seen("c"))
}

func TestDedupeCacheTTL(t *testing.T) {
	c := NewDedupeCache(20*time.Millisecond, 10)
	c.Seen("t1:msg-1")
	time.Sleep(60 * time.Millisecond)
	assert.False(t, c.Seen("t1:msg-1"), "expired entry is fresh again")
}
