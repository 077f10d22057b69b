// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package service

import (
	"sort"
	"sync"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/cache"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
)

// LockoutState is the state of one user or IP key.
type LockoutState string

const (
	StateNormal  LockoutState = "NORMAL"
	StateWarning LockoutState = "WARNING"
	StateLocked  LockoutState = "LOCKED"
)

const maxTrackedKeys = 50000

// UserKey returns the tracker key for a user.
func UserKey(userID string) string { return "user:" + userID }

// IPKey returns the tracker key for an IP address.
func IPKey(ip string) string { return "ip:" + ip }

// LockoutTracker derives NORMAL -> WARNING -> LOCKED per key from failed
// authentication events. LOCKED returns to NORMAL on Unlock or when the
// lock expires.
type LockoutTracker struct {
	threshold int
	duration  time.Duration

	failures *cache.KeyedWindow

	mu     sync.Mutex
	locked map[string]time.Time
}

// NewLockoutTracker creates a tracker that locks a key for duration once
// threshold failures fall inside window.
func NewLockoutTracker(threshold int, window, duration time.Duration) *LockoutTracker {
	if threshold < 1 {
		threshold = 5
	}
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	return &LockoutTracker{
		threshold: threshold,
		duration:  duration,
		failures:  cache.NewKeyedWindow(window, maxTrackedKeys),
		locked:    make(map[string]time.Time),
	}
}

// RecordFailure counts a failure for key at at. It returns the failure
// count and whether this failure locked the key. Failures against a key
// that is already locked are ignored.
func (t *LockoutTracker) RecordFailure(key string, at time.Time) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if until, ok := t.locked[key]; ok {
		if at.Before(until) {
			return t.threshold, false
		}
		delete(t.locked, key)
	}

	n := t.failures.Add(key, at)
	if n < t.threshold {
		return n, false
	}
	t.locked[key] = at.Add(t.duration)
	t.failures.Reset(key)
	return n, true
}

// Lock forces key into LOCKED until until.
func (t *LockoutTracker) Lock(key string, until time.Time) {
	t.mu.Lock()
	t.locked[key] = until
	t.mu.Unlock()
	t.failures.Reset(key)
}

// Unlock returns key to NORMAL.
func (t *LockoutTracker) Unlock(key string) {
	t.mu.Lock()
	delete(t.locked, key)
	t.mu.Unlock()
	t.failures.Reset(key)
}

// State returns the state of key at now.
func (t *LockoutTracker) State(key string, now time.Time) LockoutState {
	t.mu.Lock()
	until, ok := t.locked[key]
	if ok && !now.Before(until) {
		delete(t.locked, key)
		ok = false
	}
	t.mu.Unlock()

	switch {
	case ok:
		return StateLocked
	case t.failures.Count(key, now) > 0:
		return StateWarning
	default:
		return StateNormal
	}
}

// LockedUntil returns the lock expiry for key, if locked.
func (t *LockoutTracker) LockedUntil(key string, now time.Time) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	until, ok := t.locked[key]
	if !ok || !now.Before(until) {
		return time.Time{}, false
	}
	return until, true
}

// Reset forgets all state.
func (t *LockoutTracker) Reset() {
	t.mu.Lock()
	for key := range t.locked {
		delete(t.locked, key)
	}
	t.mu.Unlock()
	t.failures.Clear()
}

// Rebuild recomputes state from an event history by replaying failed
// logins, lockouts and unlocks in timestamp order.
func (t *LockoutTracker) Rebuild(history []events.Event) {
	t.Reset()

	replay := make([]events.Event, 0, len(history))
	for _, e := range history {
		switch e.Type {
		case events.TypeAuthFailure, events.TypeAuthLockout, events.TypeAuthUnlock:
			replay = append(replay, e)
		}
	}
	sort.SliceStable(replay, func(i, j int) bool {
		return replay[i].Timestamp.Before(replay[j].Timestamp)
	})

	for i := range replay {
		e := &replay[i]
		switch e.Type {
		case events.TypeAuthFailure:
			for _, key := range failureKeys(e) {
				t.RecordFailure(key, e.Timestamp)
			}
		case events.TypeAuthLockout:
			var d lockoutDetails
			if err := e.DecodeData(&d); err != nil {
				continue
			}
			until := d.LockedUntil
			if until.IsZero() {
				until = e.Timestamp.Add(t.duration)
			}
			for _, key := range d.Keys {
				t.Lock(key, until)
			}
		case events.TypeAuthUnlock:
			var req UnlockRequest
			if err := e.DecodeData(&req); err != nil {
				continue
			}
			for _, key := range unlockKeys(req) {
				t.Unlock(key)
			}
		}
	}
}

// failureKeys returns the keys a failed login counts against.
func failureKeys(e *events.Event) []string {
	keys := make([]string, 0, 2)
	if e.UserID != "" {
		keys = append(keys, UserKey(e.UserID))
	}
	if e.IPAddress != "" {
		keys = append(keys, IPKey(e.IPAddress))
	}
	return keys
}

func unlockKeys(req UnlockRequest) []string {
	keys := make([]string, 0, 2)
	if req.UserID != "" {
		keys = append(keys, UserKey(req.UserID))
	}
	if req.IPAddress != "" {
		keys = append(keys, IPKey(req.IPAddress))
	}
	return keys
}
