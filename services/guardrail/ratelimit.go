// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guardrail

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateVerdict is the outcome of recording one request against the limits.
type RateVerdict int

const (
	RateOK RateVerdict = iota
	RateSoftWarn
	RateBlocked
)

// RateLimits configures the per-session sliding windows.
type RateLimits struct {
	SoftPerMinute int           // soft warning threshold
	HardPerMinute int           // block threshold
	MinuteBlock   time.Duration // cooldown for a per-minute block
	PerHour       int
	HourBlock     time.Duration
	PerDay        int
}

// DefaultRateLimits returns the production limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		SoftPerMinute: 10,
		HardPerMinute: 15,
		MinuteBlock:   30 * time.Second,
		PerHour:       100,
		HourBlock:     10 * time.Minute,
		PerDay:        500,
	}
}

// sessionCounters tracks one session's request history.
//
// The soft per-minute path uses a token bucket; the hard windows keep
// raw timestamps so the count is exact at the boundary.
type sessionCounters struct {
	mu           sync.Mutex
	soft         *rate.Limiter
	timestamps   []time.Time
	blockedUntil time.Time
}

// RateLimiter enforces sliding-window limits per session.
//
// # Thread Safety
//
// Safe for concurrent use. Distinct sessions proceed in parallel; each
// session's counters are guarded by their own mutex.
type RateLimiter struct {
	mu       sync.Mutex
	limits   RateLimits
	sessions map[string]*sessionCounters
}

// NewRateLimiter creates a limiter with the given limits.
func NewRateLimiter(limits RateLimits) *RateLimiter {
	return &RateLimiter{
		limits:   limits,
		sessions: make(map[string]*sessionCounters),
	}
}

// Record counts one request for the session and returns the verdict.
//
// # Description
//
// Checks, in order: an active cooldown, the daily cap, the hourly
// window, the hard per-minute window, and finally the soft per-minute
// token bucket. Requests arriving during a cooldown are rejected
// without being counted; the window resumes where it left off.
//
// # Outputs
//
//   - RateVerdict: OK, SoftWarn, or Blocked.
//   - time.Duration: Remaining cooldown when Blocked, zero otherwise.
func (l *RateLimiter) Record(sessionID string, now time.Time) (RateVerdict, time.Duration) {
	c := l.countersFor(sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Before(c.blockedUntil) {
		return RateBlocked, c.blockedUntil.Sub(now)
	}

	c.timestamps = append(c.timestamps, now)
	c.prune(now)

	if c.countSince(now.Add(-24*time.Hour)) > l.limits.PerDay {
		c.blockedUntil = now.Add(l.limits.HourBlock)
		return RateBlocked, l.limits.HourBlock
	}
	if c.countSince(now.Add(-time.Hour)) > l.limits.PerHour {
		c.blockedUntil = now.Add(l.limits.HourBlock)
		return RateBlocked, l.limits.HourBlock
	}
	if c.countSince(now.Add(-time.Minute)) > l.limits.HardPerMinute {
		c.blockedUntil = now.Add(l.limits.MinuteBlock)
		return RateBlocked, l.limits.MinuteBlock
	}

	if !c.soft.AllowN(now, 1) {
		return RateSoftWarn, 0
	}
	return RateOK, 0
}

// Purge drops counters for sessions idle longer than maxIdle. Called by
// the session sweeper so the map cannot grow without bound.
func (l *RateLimiter) Purge(now time.Time, maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, c := range l.sessions {
		c.mu.Lock()
		idle := len(c.timestamps) == 0 ||
			now.Sub(c.timestamps[len(c.timestamps)-1]) > maxIdle
		c.mu.Unlock()
		if idle {
			delete(l.sessions, id)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) countersFor(sessionID string) *sessionCounters {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.sessions[sessionID]
	if !ok {
		c = &sessionCounters{
			soft: rate.NewLimiter(
				rate.Every(time.Minute/time.Duration(l.limits.SoftPerMinute)),
				l.limits.SoftPerMinute,
			),
		}
		l.sessions[sessionID] = c
	}
	return c
}

// prune drops timestamps outside the longest window (24h).
func (c *sessionCounters) prune(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	i := 0
	for i < len(c.timestamps) && c.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.timestamps = append(c.timestamps[:0], c.timestamps[i:]...)
	}
}

func (c *sessionCounters) countSince(cutoff time.Time) int {
	n := 0
	for i := len(c.timestamps) - 1; i >= 0; i-- {
		if c.timestamps[i].Before(cutoff) {
			break
		}
		n++
	}
	return n
}
