// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns all conversation-session state. The store is the
// only component allowed to mutate sessions; everything else receives
// deep copies through its methods.
package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

const (
	// DefaultTimeout is how long an untouched session lives. The product
	// docs have mentioned both 30 minutes and 4 hours; it is a config
	// knob with this default.
	DefaultTimeout = 4 * time.Hour

	// DefaultMaxMessages bounds a session's message list.
	DefaultMaxMessages = 100
)

// Config holds the store's tunables.
type Config struct {
	Timeout     time.Duration
	MaxMessages int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, MaxMessages: DefaultMaxMessages}
}

// entry pairs a session with its own mutex so operations on one session
// serialize while distinct sessions proceed in parallel.
type entry struct {
	mu      sync.Mutex
	session *datatypes.ConversationSession
}

// Store is the in-memory, process-wide session store.
//
// # Thread Safety
//
// Safe for concurrent use. The outer mutex only guards the map; each
// session's operations run under that session's own lock, so two turns
// for the same session can never interleave their read-modify-write.
type Store struct {
	config Config

	mu       sync.RWMutex
	sessions map[string]*entry

	// now is swapped out in tests to drive expiry.
	now func() time.Time
}

// NewStore creates a store. Non-positive config values take defaults.
func NewStore(config Config) *Store {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxMessages <= 0 {
		config.MaxMessages = DefaultMaxMessages
	}
	return &Store{
		config:   config,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Create allocates a fresh session and returns a copy of it.
func (s *Store) Create() datatypes.ConversationSession {
	now := s.now()
	session := &datatypes.ConversationSession{
		SessionID:      uuid.NewString(),
		CreatedAt:      now,
		LastAccessedAt: now,
		SearchState:    datatypes.NewSearchState(),
		Metadata:       make(map[string]string),
	}

	s.mu.Lock()
	s.sessions[session.SessionID] = &entry{session: session}
	s.mu.Unlock()

	slog.Info("Created session", "session_id", session.SessionID)
	return cloneSession(session)
}

// Get returns a copy of the session, touching lastAccessedAt.
//
// # Outputs
//
//   - datatypes.ConversationSession: Deep copy; mutating it cannot
//     affect the store.
//   - error: ErrSessionNotFound when absent or expired.
func (s *Store) Get(sessionID string) (datatypes.ConversationSession, error) {
	e, err := s.live(sessionID)
	if err != nil {
		return datatypes.ConversationSession{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.LastAccessedAt = s.now()
	return cloneSession(e.session), nil
}

// AppendMessage adds one message, evicting the oldest at the cap.
// The message's ID and timestamp are stamped by the store.
func (s *Store) AppendMessage(sessionID string, msg datatypes.ConversationMessage) error {
	e, err := s.live(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Timestamp = s.now()

	if len(e.session.Messages) >= s.config.MaxMessages {
		evict := len(e.session.Messages) - s.config.MaxMessages + 1
		e.session.Messages = append(e.session.Messages[:0], e.session.Messages[evict:]...)
	}
	e.session.Messages = append(e.session.Messages, msg)
	e.session.LastAccessedAt = msg.Timestamp
	return nil
}

// UpdateSearchState overwrites the session's search state.
func (s *Store) UpdateSearchState(sessionID string, state datatypes.SearchState) error {
	e, err := s.live(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.SearchState = state.Clone()
	e.session.LastAccessedAt = s.now()
	return nil
}

// GetHistory returns the newest maxMessages messages, oldest-first.
// maxMessages <= 0 means all.
func (s *Store) GetHistory(sessionID string, maxMessages int) ([]datatypes.ConversationMessage, error) {
	e, err := s.live(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.LastAccessedAt = s.now()

	msgs := e.session.Messages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	out := make([]datatypes.ConversationMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear removes the session. Clearing an absent session is not an error.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	slog.Info("Cleared session", "session_id", sessionID)
}

// Exists probes for a live session, expiring it as a side effect if its
// time is up.
func (s *Store) Exists(sessionID string) bool {
	_, err := s.live(sessionID)
	return err == nil
}

// Summary is the listing row for one session.
type Summary struct {
	SessionID      string    `json:"sessionId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	MessageCount   int       `json:"messageCount"`
	ActiveFilters  int       `json:"activeFilters"`
}

// List returns a summary of every live session, newest-accessed first.
// It does not touch lastAccessedAt.
func (s *Store) List() []Summary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	cutoff := s.now().Add(-s.config.Timeout)
	var out []Summary
	for _, e := range entries {
		e.mu.Lock()
		if !e.session.LastAccessedAt.Before(cutoff) {
			out = append(out, Summary{
				SessionID:      e.session.SessionID,
				CreatedAt:      e.session.CreatedAt,
				LastAccessedAt: e.session.LastAccessedAt,
				MessageCount:   len(e.session.Messages),
				ActiveFilters:  len(e.session.SearchState.ActiveFilters),
			})
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
	})
	return out
}

// Sweep removes every expired session and returns how many went.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.config.Timeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		expired := e.session.LastAccessedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Swept expired sessions", "removed", removed)
	}
	return removed
}

// Timeout exposes the configured session timeout for the sweeper.
func (s *Store) Timeout() time.Duration { return s.config.Timeout }

// live fetches a non-expired entry, removing it when expired.
func (s *Store) live(sessionID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", datatypes.ErrSessionNotFound, sessionID)
	}

	e.mu.Lock()
	expired := s.now().Sub(e.session.LastAccessedAt) > s.config.Timeout
	e.mu.Unlock()

	if expired {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		slog.Info("Expired session on access", "session_id", sessionID)
		return nil, fmt.Errorf("%w: %s", datatypes.ErrSessionNotFound, sessionID)
	}
	return e, nil
}

func cloneSession(in *datatypes.ConversationSession) datatypes.ConversationSession {
	out := datatypes.ConversationSession{
		SessionID:      in.SessionID,
		CreatedAt:      in.CreatedAt,
		LastAccessedAt: in.LastAccessedAt,
		SearchState:    in.SearchState.Clone(),
	}
	if len(in.Messages) > 0 {
		out.Messages = make([]datatypes.ConversationMessage, len(in.Messages))
		copy(out.Messages, in.Messages)
	}
	if len(in.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
