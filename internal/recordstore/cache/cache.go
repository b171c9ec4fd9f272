// Package cache holds the per-dataset query result cache of the record store.
// Entries are keyed by the normalized query string and are only ever dropped
// all at once, when the dataset is replaced or the optional size bound is hit.
package cache

import (
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore/tokenizer"
)

// QueryCache maps normalized queries to previously computed results.
type QueryCache[V any] struct {
	entries    map[string]V
	maxEntries int
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
	clears     atomic.Int64
}

// New creates a QueryCache. maxEntries <= 0 means unbounded.
func New[V any](maxEntries int) *QueryCache[V] {
	return &QueryCache[V]{
		entries:    make(map[string]V),
		maxEntries: maxEntries,
		logger:     slog.Default().With("component", "query-cache"),
	}
}

// Key returns the cache key for query.
func Key(query string) string {
	return tokenizer.Normalize(query)
}

// Get looks up a normalized key.
func (c *QueryCache[V]) Get(key string) (V, bool) {
	v, ok := c.entries[key]
	if ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "key", key)
		return v, true
	}
	c.misses.Add(1)
	return v, false
}

// Set stores value under a normalized key. When the bound is reached the whole
// cache is cleared before the new entry is added.
func (c *QueryCache[V]) Set(key string, value V) {
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.logger.Debug("cache full, clearing", "entries", len(c.entries), "max_entries", c.maxEntries)
		c.Clear()
	}
	c.entries[key] = value
}

// GetOrCompute returns the cached value for key or computes and stores it.
func (c *QueryCache[V]) GetOrCompute(key string, computeFn func() V) (V, bool) {
	if v, ok := c.Get(key); ok {
		return v, true
	}
	v := computeFn()
	c.Set(key, v)
	return v, false
}

// Clear drops every entry.
func (c *QueryCache[V]) Clear() {
	if len(c.entries) == 0 {
		return
	}
	c.entries = make(map[string]V)
	c.clears.Add(1)
}

// Len returns the number of cached queries.
func (c *QueryCache[V]) Len() int {
	return len(c.entries)
}

// Stats returns hit and miss counters since creation.
func (c *QueryCache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
