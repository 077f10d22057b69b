// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package cache

import (
	"sync"
	"testing"
)

func TestRingBuffer_LatestNewestFirst(t *testing.T) {
	r := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	got := r.Latest(0)
	want := []int{5, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("Latest(0) len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Latest(0)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if r.Len() != 3 || r.Cap() != 3 {
		t.Errorf("Len/Cap = %d/%d, want 3/3", r.Len(), r.Cap())
	}
}

func TestRingBuffer_LatestLimit(t *testing.T) {
	r := NewRingBuffer[string](10)
	r.Push("a")
	r.Push("b")

	if got := r.Latest(1); len(got) != 1 || got[0] != "b" {
		t.Errorf("Latest(1) = %v, want [b]", got)
	}
	if got := r.Latest(50); len(got) != 2 {
		t.Errorf("Latest(50) should clamp to size, got %v", got)
	}
}

func TestRingBuffer_ConcurrentPush(t *testing.T) {
	r := NewRingBuffer[int](1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			r.Push(v)
		}(i)
	}
	wg.Wait()

	if r.Len() != 100 {
		t.Errorf("Len = %d, want 100", r.Len())
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	r := NewRingBuffer[int](2)
	r.Push(1)
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len after Reset = %d", r.Len())
	}
}
