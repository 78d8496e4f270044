// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// testClock lets tests advance the store's view of time.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(config Config) (*Store, *testClock) {
	s := NewStore(config)
	clock := &testClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, clock
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore(DefaultConfig())

	created := s.Create()
	require.NotEmpty(t, created.SessionID)
	require.NotNil(t, created.SearchState.ActiveFilters)

	got, err := s.Get(created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, created.SessionID, got.SessionID)
	assert.Empty(t, got.Messages)
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(DefaultConfig())
	id := s.Create().SessionID

	got, err := s.Get(id)
	require.NoError(t, err)
	got.SearchState.ActiveFilters["price"] = datatypes.SearchConstraint{
		FieldName: datatypes.FieldPrice,
	}

	again, err := s.Get(id)
	require.NoError(t, err)
	assert.Empty(t, again.SearchState.ActiveFilters,
		"mutating a returned session must not leak into the store")
}

func TestGetAfterClearReturnsNotFound(t *testing.T) {
	s, _ := newTestStore(DefaultConfig())
	id := s.Create().SessionID

	s.Clear(id)

	_, err := s.Get(id)
	assert.ErrorIs(t, err, datatypes.ErrSessionNotFound)

	// Clearing again is a no-op, not an error.
	s.Clear(id)
}

func TestGetAfterTimeoutReturnsNotFound(t *testing.T) {
	s, clock := newTestStore(Config{Timeout: 30 * time.Minute})
	id := s.Create().SessionID

	clock.Advance(29 * time.Minute)
	_, err := s.Get(id)
	require.NoError(t, err)

	// Get touched lastAccessedAt, so the window restarts.
	clock.Advance(29 * time.Minute)
	require.True(t, s.Exists(id))

	clock.Advance(31 * time.Minute)
	_, err = s.Get(id)
	assert.ErrorIs(t, err, datatypes.ErrSessionNotFound)
	assert.False(t, s.Exists(id))
}

func TestAppendOnExpiredSessionBehavesAsMissing(t *testing.T) {
	s, clock := newTestStore(Config{Timeout: 30 * time.Minute})
	id := s.Create().SessionID

	clock.Advance(31 * time.Minute)
	err := s.AppendMessage(id, datatypes.ConversationMessage{
		Role: datatypes.RoleUser, Content: "show me BMWs",
	})
	assert.ErrorIs(t, err, datatypes.ErrSessionNotFound)
}

func TestAppendMessageStampsAndEvicts(t *testing.T) {
	s, _ := newTestStore(Config{MaxMessages: 3})
	id := s.Create().SessionID

	for i := 0; i < 5; i++ {
		err := s.AppendMessage(id, datatypes.ConversationMessage{
			Role: datatypes.RoleUser, Content: fmt.Sprintf("turn %d", i),
		})
		require.NoError(t, err)
	}

	history, err := s.GetHistory(id, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "turn 2", history[0].Content)
	assert.Equal(t, "turn 4", history[2].Content)
	for _, msg := range history {
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestGetHistoryReturnsNewestNOldestFirst(t *testing.T) {
	s, _ := newTestStore(DefaultConfig())
	id := s.Create().SessionID

	for i := 0; i < 6; i++ {
		require.NoError(t, s.AppendMessage(id, datatypes.ConversationMessage{
			Role: datatypes.RoleUser, Content: fmt.Sprintf("turn %d", i),
		}))
	}

	history, err := s.GetHistory(id, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "turn 4", history[0].Content)
	assert.Equal(t, "turn 5", history[1].Content)
}

func TestUpdateSearchStateOverwrites(t *testing.T) {
	s, _ := newTestStore(DefaultConfig())
	id := s.Create().SessionID

	state := datatypes.NewSearchState()
	state.ActiveFilters[datatypes.FieldMake] = datatypes.SearchConstraint{
		FieldName: datatypes.FieldMake,
		Operator:  datatypes.OpEq,
		Value:     datatypes.StringValue("BMW"),
		Kind:      datatypes.KindExact,
	}
	require.NoError(t, s.UpdateSearchState(id, state))

	// The store keeps its own clone.
	state.ActiveFilters[datatypes.FieldColour] = datatypes.SearchConstraint{
		FieldName: datatypes.FieldColour,
	}

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Len(t, got.SearchState.ActiveFilters, 1)
	assert.Equal(t, "BMW", got.SearchState.ActiveFilters[datatypes.FieldMake].Value.Str)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	s, clock := newTestStore(Config{Timeout: 30 * time.Minute})
	stale := s.Create().SessionID

	clock.Advance(20 * time.Minute)
	fresh := s.Create().SessionID

	clock.Advance(15 * time.Minute)
	removed := s.Sweep(clock.Now())

	assert.Equal(t, 1, removed)
	assert.False(t, s.Exists(stale))
	assert.True(t, s.Exists(fresh))
}

func TestListNewestAccessedFirst(t *testing.T) {
	s, clock := newTestStore(DefaultConfig())
	first := s.Create().SessionID
	clock.Advance(time.Minute)
	second := s.Create().SessionID

	require.NoError(t, s.AppendMessage(second, datatypes.ConversationMessage{
		Role: datatypes.RoleUser, Content: "hello",
	}))

	summaries := s.List()
	require.Len(t, summaries, 2)
	assert.Equal(t, second, summaries[0].SessionID)
	assert.Equal(t, 1, summaries[0].MessageCount)
	assert.Equal(t, first, summaries[1].SessionID)
}

func TestConcurrentAppendsOnOneSession(t *testing.T) {
	s, _ := newTestStore(DefaultConfig())
	id := s.Create().SessionID

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendMessage(id, datatypes.ConversationMessage{
				Role: datatypes.RoleUser, Content: fmt.Sprintf("turn %d", i),
			})
		}(i)
	}
	wg.Wait()

	history, err := s.GetHistory(id, 0)
	require.NoError(t, err)
	assert.Len(t, history, turns)
}

func TestSweeperIntervalClampedToFifthOfTimeout(t *testing.T) {
	s, _ := newTestStore(Config{Timeout: 50 * time.Minute})

	assert.Equal(t, 10*time.Minute, NewSweeper(s, 0).interval)
	assert.Equal(t, 10*time.Minute, NewSweeper(s, time.Hour).interval)
	assert.Equal(t, time.Minute, NewSweeper(s, time.Minute).interval)
}

func TestSweeperRunsHooks(t *testing.T) {
	s, _ := newTestStore(Config{Timeout: time.Second})

	var mu sync.Mutex
	ticks := 0
	sweeper := NewSweeper(s, 10*time.Millisecond, func(time.Time) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 2
	}, 2*time.Second, 5*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop() // idempotent
}
