// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many real embed calls were made.
type countingEmbedder struct {
	calls int
	fail  bool
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.fail {
		return nil, errors.New("backend down")
	}
	return []float32{float32(len(text)), 0.5}, nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }

func TestCachingEmbedderHitsOnRepeat(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCachingEmbedder(inner, 10, time.Hour)

	v1, err := cache.Embed(context.Background(), "reliable BMW")
	require.NoError(t, err)
	v2, err := cache.Embed(context.Background(), "reliable BMW")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls, "second call should be served from cache")

	hits, misses := cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCachingEmbedderNormalizesKeys(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCachingEmbedder(inner, 10, time.Hour)

	_, err := cache.Embed(context.Background(), "  Reliable BMW ")
	require.NoError(t, err)
	_, err = cache.Embed(context.Background(), "reliable bmw")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls, "case and whitespace variants share one entry")
}

func TestCachingEmbedderEvictsLRU(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCachingEmbedder(inner, 2, time.Hour)

	ctx := context.Background()
	_, _ = cache.Embed(ctx, "a")
	_, _ = cache.Embed(ctx, "b")
	_, _ = cache.Embed(ctx, "a") // touch a so b is LRU
	_, _ = cache.Embed(ctx, "c") // evicts b

	before := inner.calls
	_, _ = cache.Embed(ctx, "a")
	assert.Equal(t, before, inner.calls, "a should still be cached")

	_, _ = cache.Embed(ctx, "b")
	assert.Equal(t, before+1, inner.calls, "b should have been evicted")
}

func TestCachingEmbedderTTLExpiry(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCachingEmbedder(inner, 10, time.Minute)

	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	_, err := cache.Embed(context.Background(), "audi a4")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	_, err = cache.Embed(context.Background(), "audi a4")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls, "expired entry must not be served")
}

func TestCachingEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	cache := NewCachingEmbedder(inner, 10, time.Hour)

	_, err := cache.Embed(context.Background(), "bmw")
	require.Error(t, err)

	inner.fail = false
	_, err = cache.Embed(context.Background(), "bmw")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
