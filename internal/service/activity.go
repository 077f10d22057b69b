// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/analyzer"
)

// minuteBucket counts events for one key in the current minute.
type minuteBucket struct {
	minute time.Time
	count  int
}

// activityTracker turns an event stream into per-minute counts. Completed
// minutes are pushed to the analyzer window for the key; the running
// minute stays in the bucket. At capacity the least recently observed key
// is dropped together with its analyzer window.
type activityTracker struct {
	analyzer *analyzer.Analyzer

	mu      sync.Mutex
	buckets *simplelru.LRU[string, *minuteBucket]
}

func newActivityTracker(an *analyzer.Analyzer, maxKeys int) *activityTracker {
	if maxKeys <= 0 {
		maxKeys = maxTrackedKeys
	}
	// The eviction callback runs under mu, inside buckets.Add.
	buckets, _ := simplelru.NewLRU[string, *minuteBucket](maxKeys, func(key string, _ *minuteBucket) {
		an.Reset(key)
	})
	return &activityTracker{
		analyzer: an,
		buckets:  buckets,
	}
}

// Observe counts one event for key at at and returns the key's series:
// completed minutes oldest first, then the running minute.
func (t *activityTracker) Observe(key string, at time.Time) []float64 {
	minute := at.Truncate(time.Minute)

	t.mu.Lock()
	b, ok := t.buckets.Get(key)
	if !ok {
		b = &minuteBucket{minute: minute}
		t.buckets.Add(key, b)
	}

	if minute.After(b.minute) {
		t.analyzer.AddDataPoint(key, float64(b.count))
		// Idle minutes count as zero, up to one full window.
		idle := int(minute.Sub(b.minute)/time.Minute) - 1
		if w := t.analyzer.Config().WindowSize; idle > w {
			idle = w
		}
		for i := 0; i < idle; i++ {
			t.analyzer.AddDataPoint(key, 0)
		}
		b.minute = minute
		b.count = 0
	}
	b.count++
	current := float64(b.count)
	t.mu.Unlock()

	return append(t.analyzer.Window(key), current)
}
