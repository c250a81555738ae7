package lru

import "container/list"

// Cache is a cost- and count-bounded LRU cache keyed by string.
//
// Every entry carries a caller-supplied cost (typically its size in bytes).
// Inserting an entry evicts least-recently-used entries until both the total
// cost and the entry count fit within the configured limits. An entry whose
// cost alone exceeds MaxCost is rejected outright.
//
// Cache is not safe for concurrent use; callers hold their own lock.
type Cache struct {
	maxCost    int64
	maxEntries int

	cost    int64
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type entry struct {
	key   string
	value any
	cost  int64
}

// New creates a cache bounded by maxCost total cost and maxEntries entries.
// Non-positive limits mean unlimited for that dimension.
func New(maxCost int64, maxEntries int) *Cache {
	return &Cache{
		maxCost:    maxCost,
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache) Get(key string) (any, bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Remove deletes key from the cache and returns its value, if present.
func (c *Cache) Remove(key string) (any, bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	c.evict(el)
	return e.value, true
}

// Set inserts or replaces the value for key with the given cost.
// Returns false if the entry can never fit.
func (c *Cache) Set(key string, value any, cost int64) bool {
	if c.maxCost > 0 && cost > c.maxCost {
		return false
	}
	if el, ok := c.entries[key]; ok {
		c.evict(el)
	}
	el := c.order.PushFront(&entry{key: key, value: value, cost: cost})
	c.entries[key] = el
	c.cost += cost
	c.trim()
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int { return c.order.Len() }

// Cost returns the total cost of all entries.
func (c *Cache) Cost() int64 { return c.cost }

// Clear removes every entry.
func (c *Cache) Clear() {
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.cost = 0
}

func (c *Cache) trim() {
	for (c.maxCost > 0 && c.cost > c.maxCost) ||
		(c.maxEntries > 0 && c.order.Len() > c.maxEntries) {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.evict(oldest)
	}
}

func (c *Cache) evict(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
	c.cost -= e.cost
}
