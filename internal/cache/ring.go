// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package cache

import "sync"

// RingBuffer is a fixed-capacity buffer that overwrites its oldest element
// once full.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // next write position
	size  int
}

// NewRingBuffer creates a ring buffer holding at most capacity items.
// A non-positive capacity defaults to 1000.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when full.
func (r *RingBuffer[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// Latest returns up to n items, newest first. n <= 0 returns everything.
func (r *RingBuffer[T]) Latest(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + len(r.items)) % len(r.items)
		out[i] = r.items[idx]
	}
	return out
}

// Len returns the number of stored items.
func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the buffer capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.items)
}

// Reset removes all items.
func (r *RingBuffer[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.size = 0, 0
}
