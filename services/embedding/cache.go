// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"container/list"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheSize = 1000
	defaultCacheTTL  = 24 * time.Hour
)

type cacheEntry struct {
	key     string
	vector  []float32
	expires time.Time
}

// CachingEmbedder wraps an Embedder with an LRU cache.
//
// # Description
//
// Keys are the normalized text (lowercased, whitespace-trimmed), so
// "BMW 3 Series " and "bmw 3 series" share an entry. Entries expire
// after the TTL and the cache holds at most size entries, evicting the
// least recently used. Repeated identical queries in a conversation hit
// the cache rather than the API.
//
// # Thread Safety
//
// Safe for concurrent use. A single mutex guards the map and list;
// the underlying Embed call runs outside the lock.
type CachingEmbedder struct {
	inner Embedder
	size  int
	ttl   time.Duration

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recently used

	// now is swapped out in tests to drive TTL expiry.
	now func() time.Time

	hits   uint64
	misses uint64
}

// NewCachingEmbedder wraps inner with an LRU+TTL cache. Non-positive
// size or ttl fall back to the defaults (1000 entries, 24h).
func NewCachingEmbedder(inner Embedder, size int, ttl time.Duration) *CachingEmbedder {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachingEmbedder{
		inner: inner,
		size:  size,
		ttl:   ttl,
		items: make(map[string]*list.Element),
		order: list.New(),
		now:   time.Now,
	}
}

// Embed returns a cached vector when present, otherwise delegates to the
// wrapped embedder and stores the result. Errors are never cached.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := normalizeKey(text)

	if vec, ok := c.get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, vec)
	return vec, nil
}

// Dimensions implements Embedder.
func (c *CachingEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Stats returns cumulative hit and miss counts.
func (c *CachingEmbedder) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *CachingEmbedder) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.order.Remove(elem)
		delete(c.items, key)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return entry.vector, true
}

func (c *CachingEmbedder) put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.vector = vector
		entry.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.size {
		oldest := c.order.Back()
		if oldest != nil {
			evicted := oldest.Value.(*cacheEntry)
			c.order.Remove(oldest)
			delete(c.items, evicted.key)
			slog.Debug("Evicted embedding cache entry", "key", evicted.key)
		}
	}

	elem := c.order.PushFront(&cacheEntry{
		key:     key,
		vector:  vector,
		expires: c.now().Add(c.ttl),
	})
	c.items[key] = elem
}

func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
