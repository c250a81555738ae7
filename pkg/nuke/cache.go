package nuke

import (
	"image"
	"sync"

	"github.com/1930s/Nuke/internal/lru"
)

// ImageCache stores final decoded images keyed by normalized request. The
// pipeline consults it before starting any work and writes successful results
// back, both subject to the request's cache policy flags.
type ImageCache interface {
	Get(key string) (image.Image, bool)
	Set(key string, img image.Image)
}

// MemoryCache is an in-memory ImageCache bounded by the approximate byte
// cost of its images (width * height * 4). Safe for concurrent use.
type MemoryCache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

// NewMemoryCache creates a cache bounded by maxBytes of decoded pixel data.
func NewMemoryCache(maxBytes int64) *MemoryCache {
	return &MemoryCache{lru: lru.New(maxBytes, 0)}
}

func (c *MemoryCache) Get(key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.(image.Image), true
}

func (c *MemoryCache) Set(key string, img image.Image) {
	c.mu.Lock()
	c.lru.Set(key, img, imageCost(img))
	c.mu.Unlock()
}

// Len returns the number of cached images.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func imageCost(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
