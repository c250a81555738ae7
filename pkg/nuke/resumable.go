package nuke

import (
	"sync"

	"github.com/1930s/Nuke/internal/lru"
)

// resumableData is a partially downloaded resource: the bytes received before
// the transfer was interrupted plus the validator needed to ask the origin to
// continue where it left off.
type resumableData struct {
	Data      []byte
	Validator string // ETag or Last-Modified value
	Total     int64  // declared full length, 0 if unknown
}

// resumableCache holds resumable data keyed by resource URL, bounded by total
// byte cost and entry count, evicted least-recently-used first. Entries are
// single-use: a read removes the entry, and the caller reinserts it if the
// resumed attempt fails in turn.
type resumableCache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

func newResumableCache(maxBytes int64, maxEntries int) *resumableCache {
	return &resumableCache{lru: lru.New(maxBytes, maxEntries)}
}

// GetAndRemove consumes the entry for key, if any.
func (c *resumableCache) GetAndRemove(key string) *resumableData {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Remove(key)
	if !ok {
		return nil
	}
	return v.(*resumableData)
}

// Set stores d under key. Entries without data or without a validator are
// useless for resumption and are dropped.
func (c *resumableCache) Set(key string, d *resumableData) {
	if len(d.Data) == 0 || d.Validator == "" {
		return
	}
	c.mu.Lock()
	c.lru.Set(key, d, int64(len(d.Data)))
	c.mu.Unlock()
}
