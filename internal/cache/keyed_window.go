// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package cache

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// stamps is held by pointer so pruning updates the entry without touching
// its recency.
type stamps struct {
	ts []time.Time
}

// KeyedWindow tracks event timestamps per key within a rolling window.
// Keys are ordered by their last Add; at capacity the least recently added
// key is evicted in O(1).
type KeyedWindow struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, *stamps]
	window  time.Duration
}

// NewKeyedWindow creates a KeyedWindow. A non-positive window defaults to
// five minutes; a non-positive maxKeys means unbounded.
func NewKeyedWindow(window time.Duration, maxKeys int) *KeyedWindow {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if maxKeys <= 0 {
		maxKeys = math.MaxInt
	}
	// NewLRU only fails for a non-positive size.
	entries, _ := simplelru.NewLRU[string, *stamps](maxKeys, nil)
	return &KeyedWindow{
		entries: entries,
		window:  window,
	}
}

// Add records a timestamp for key and returns the number of timestamps
// inside the window ending at at.
func (w *KeyedWindow) Add(key string, at time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.entries.Get(key)
	if !ok {
		s = &stamps{}
		w.entries.Add(key, s)
	}
	s.ts = append(prune(s.ts, at.Add(-w.window)), at)
	return len(s.ts)
}

// Count returns the number of timestamps for key inside the window ending
// at now. It does not change the key's eviction order.
func (w *KeyedWindow) Count(key string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.entries.Peek(key)
	if !ok {
		return 0
	}
	s.ts = prune(s.ts, now.Add(-w.window))
	if len(s.ts) == 0 {
		w.entries.Remove(key)
		return 0
	}
	return len(s.ts)
}

// Reset forgets every timestamp recorded for key.
func (w *KeyedWindow) Reset(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries.Remove(key)
}

// Clear forgets every key.
func (w *KeyedWindow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries.Purge()
}

// Len returns the number of tracked keys.
func (w *KeyedWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries.Len()
}

// Window returns the configured window duration.
func (w *KeyedWindow) Window() time.Duration {
	return w.window
}

// prune drops timestamps at or before cutoff. ts is sorted ascending as long
// as callers add in time order; out-of-order adds are still counted until
// they fall out of the window.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
