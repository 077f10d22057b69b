// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package cache provides bounded in-memory structures used by the security
event pipeline.

# Ring Buffer

RingBuffer[T] keeps the N most recent values. The SecurityEventService uses
it for its recent-event cache so read-back never touches durable storage:

	ring := cache.NewRingBuffer[events.Event](1000)
	ring.Push(evt)
	latest := ring.Latest(50) // newest first

Complexity:
  - Push: O(1)
  - Latest(n): O(n)
  - Memory: O(capacity)

# Keyed Window

KeyedWindow records timestamps per key inside a rolling time window. The
lockout tracker counts failed logins per user and per IP with it, and the
access observer counts requests per minute per operator:

	w := cache.NewKeyedWindow(15*time.Minute, 10000)
	n := w.Add("user:42", now) // failures for user 42 in the last 15 minutes

Keys with no timestamps left in the window are dropped on access. When
maxKeys is reached, the least recently added key is evicted in constant
time (golang-lru simplelru ordering).

All types are safe for concurrent use.
*/
package cache
