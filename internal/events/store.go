// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the durable event log.
type Store interface {
	// Save persists an event.
	Save(ctx context.Context, event *Event) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]Event, error)

	// Delete removes events older than olderThan and returns the count.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// StatsStore is implemented by stores that can aggregate in place.
type StatsStore interface {
	Stats(ctx context.Context, since time.Time) (*Statistics, error)
}

// Query limits.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Filter selects events. Empty fields match everything.
type Filter struct {
	Types         []EventType `json:"types,omitempty"`
	Severities    []Severity  `json:"severities,omitempty"`
	Sources       []Source    `json:"sources,omitempty"`
	UserID        string      `json:"user_id,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
	IPAddress     string      `json:"ip_address,omitempty"`
	StartTime     *time.Time  `json:"start_time,omitempty"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Offset        int         `json:"offset,omitempty"`
}

// normalize applies the default limit and clamps it to maxLimit.
func (f Filter) normalize(maxLimit int) Filter {
	if maxLimit <= 0 {
		maxLimit = MaxQueryLimit
	}
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether e satisfies every criterion of the filter.
//
//nolint:gocyclo // complexity inherent to multi-criteria filter matching
func (f *Filter) Matches(e *Event) bool {
	if len(f.Types) > 0 && !contains(f.Types, e.Type) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, e.Severity) {
		return false
	}
	if len(f.Sources) > 0 && !contains(f.Sources, e.Source) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// Window is a statistics look-back period.
type Window string

const (
	WindowHour  Window = "1h"
	WindowDay   Window = "24h"
	WindowWeek  Window = "7d"
	WindowMonth Window = "30d"
)

var windowDurations = map[Window]time.Duration{
	WindowHour:  time.Hour,
	WindowDay:   24 * time.Hour,
	WindowWeek:  7 * 24 * time.Hour,
	WindowMonth: 30 * 24 * time.Hour,
}

// ParseWindow validates s as a statistics window.
func ParseWindow(s string) (Window, error) {
	w := Window(s)
	if _, ok := windowDurations[w]; !ok {
		return "", fmt.Errorf("%w: %q (want 1h, 24h, 7d or 30d)", ErrInvalidWindow, s)
	}
	return w, nil
}

// Duration returns the window length, or 0 for an unknown window.
func (w Window) Duration() time.Duration {
	return windowDurations[w]
}

// Statistics summarizes events inside a window.
type Statistics struct {
	Window     Window           `json:"window"`
	Since      time.Time        `json:"since"`
	Total      int64            `json:"total"`
	ByType     map[string]int64 `json:"by_type"`
	BySeverity map[string]int64 `json:"by_severity"`
	BySource   map[string]int64 `json:"by_source"`
}

func newStatistics(since time.Time) *Statistics {
	return &Statistics{
		Since:      since,
		ByType:     make(map[string]int64),
		BySeverity: make(map[string]int64),
		BySource:   make(map[string]int64),
	}
}

func (s *Statistics) add(e *Event) {
	s.Total++
	s.ByType[string(e.Type)]++
	s.BySeverity[string(e.Severity)]++
	s.BySource[string(e.Source)]++
}

// MemoryStore implements Store in memory.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

// NewMemoryStore creates an in-memory store holding at most maxLen events.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, min(maxLen, 1024)),
		maxLen: maxLen,
	}
}

// Save appends an event, removing the oldest 10% once full.
func (s *MemoryStore) Save(_ context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		removeCount := max(s.maxLen/10, 1)
		s.events = append(s.events[:0], s.events[removeCount:]...)
	}
	s.events = append(s.events, *event)
	return nil
}

// Query returns matching events newest first.
func (s *MemoryStore) Query(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.RLock()
	var matched []Event
	for i := range s.events {
		if filter.Matches(&s.events[i]) {
			matched = append(matched, s.events[i])
		}
	}
	s.mu.RUnlock()

	// Writes from concurrent emitters can land out of timestamp order.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Delete removes events older than olderThan.
func (s *MemoryStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for i := range s.events {
		if s.events[i].Timestamp.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, s.events[i])
	}
	s.events = kept
	return deleted, nil
}

// Stats aggregates events at or after since.
func (s *MemoryStore) Stats(_ context.Context, since time.Time) (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := newStatistics(since)
	for i := range s.events {
		if !s.events[i].Timestamp.Before(since) {
			stats.add(&s.events[i])
		}
	}
	return stats, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Clear removes all events (for testing).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}
