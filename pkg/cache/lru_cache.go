package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LruCache keeps the most recently used entries, up to a fixed number of them.
type LruCache[K comparable, V any] struct {
	lru *lru.Cache[K, V]
}

var _ Cache[int64, struct{}] = (*LruCache[int64, struct{}])(nil)

// NewLruCache returns a cache of the given size. A size of zero or less returns a NoCache.
func NewLruCache[K comparable, V any](size int) Cache[K, V] {
	if size <= 0 {
		return NoCache[K, V]{}
	}
	c, err := lru.New[K, V](size)
	if err != nil {
		// Only possible with non positive sizes.
		panic(err)
	}
	return &LruCache[K, V]{lru: c}
}

func (c *LruCache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

func (c *LruCache[K, V]) Add(key K, value V) {
	c.lru.Add(key, value)
}

// NoCache never contains anything.
type NoCache[K comparable, V any] struct{}

var _ Cache[int64, struct{}] = NoCache[int64, struct{}]{}

// Get always returns false (the item is never in cache).
func (NoCache[K, V]) Get(K) (V, bool) {
	return *new(V), false
}

// Add doesn't do anything.
func (NoCache[K, V]) Add(K, V) {}
