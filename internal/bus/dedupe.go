package bus

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupeCache remembers recently seen channel message ids so webhook
// retries and double-taps don't duplicate pipeline runs. It is the fast
// path in front of the durable unique index on messages.channel_message_id.
type DedupeCache struct {
	lru *expirable.LRU[string, struct{}]
}

// NewDedupeCache creates a bounded TTL cache. Entries expire after ttl;
// the oldest entry is evicted once max is reached.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	return &DedupeCache{lru: expirable.NewLRU[string, struct{}](max, nil, ttl)}
}

// Seen marks the key and reports whether it was already present.
func (c *DedupeCache) Seen(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := c.lru.Get(key); ok {
		return true
	}
	c.lru.Add(key, struct{}{})
	return false
}

// Forget drops a key, letting a later retry process it again (used when
// processing failed before any durable write).
func (c *DedupeCache) Forget(key string) {
	c.lru.Remove(key)
}
