// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically removes expired sessions in the background.
//
// # Description
//
// Runs a ticker at an interval of at most one fifth of the session
// timeout so sessions never linger much past expiry. Extra hooks run on
// every tick; the server registers the guardrail rate limiter's purge
// there so both stores shrink together. The sweeper never blocks
// request handling; it competes only for the store's internal locks.
type Sweeper struct {
	store    *Store
	interval time.Duration
	hooks    []func(now time.Time)

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a sweeper for the store. An interval of zero (or
// anything above timeout/5) is clamped to timeout/5.
func NewSweeper(store *Store, interval time.Duration, hooks ...func(now time.Time)) *Sweeper {
	limit := store.Timeout() / 5
	if interval <= 0 || interval > limit {
		interval = limit
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		hooks:    hooks,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. Call Stop to shut it down.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("Session sweeper started", "interval", s.interval)
		for {
			select {
			case <-s.done:
				return
			case now := <-ticker.C:
				s.store.Sweep(now)
				for _, hook := range s.hooks {
					hook(now)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit. Idempotent.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}
