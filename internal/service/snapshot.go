// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package service

import (
	"context"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
)

// Metrics is a point-in-time view of the service counters. Event counts
// cover this Service since construction; ListenerErrors, PersistFailures
// and PersistDropped are process-wide Prometheus totals.
type Metrics struct {
	TotalEvents      int64                      `json:"total_events"`
	EventsBySeverity map[events.Severity]int64  `json:"events_by_severity"`
	EventsByType     map[events.EventType]int64 `json:"events_by_type"`
	CacheSize        int                        `json:"cache_size"`
	CacheCapacity    int                        `json:"cache_capacity"`
	Lockouts         int64                      `json:"lockouts"`
	BlocksIssued     int64                      `json:"blocks_issued"`
	Anomalies        int64                      `json:"anomalies"`
	BlockedIPs       int                        `json:"blocked_ips"`
	ListenerErrors   int64                      `json:"listener_errors"`
	PersistFailures  int64                      `json:"persist_failures"`
	PersistDropped   int64                      `json:"persist_dropped"`
	PendingPersist   int                        `json:"pending_persist"`
	LastEventAt      *time.Time                 `json:"last_event_at,omitempty"`
}

// record counts and caches every accepted event.
func (s *Service) record(_ context.Context, evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent.Push(evt)
	s.total++
	s.bySeverity[evt.Severity]++
	s.byType[evt.Type]++
	if evt.Timestamp.After(s.lastEvent) {
		s.lastEvent = evt.Timestamp
	}
	return nil
}

// GetMetrics returns a copy of the counters.
func (s *Service) GetMetrics() Metrics {
	s.mu.Lock()
	m := Metrics{
		TotalEvents:      s.total,
		EventsBySeverity: make(map[events.Severity]int64, len(s.bySeverity)),
		EventsByType:     make(map[events.EventType]int64, len(s.byType)),
		CacheSize:        s.recent.Len(),
		CacheCapacity:    s.recent.Cap(),
		Lockouts:         s.byType[events.TypeAuthLockout],
		BlocksIssued:     s.byType[events.TypeThreatBlocked],
		Anomalies:        s.byType[events.TypeAnomaly],
	}
	for k, v := range s.bySeverity {
		m.EventsBySeverity[k] = v
	}
	for k, v := range s.byType {
		m.EventsByType[k] = v
	}
	if !s.lastEvent.IsZero() {
		last := s.lastEvent
		m.LastEventAt = &last
	}
	s.mu.Unlock()

	m.BlockedIPs = len(s.agg.ListBlocked())
	m.ListenerErrors = int64(metrics.CounterVecTotal(metrics.ListenerErrors))
	m.PersistFailures = int64(metrics.CounterValue(metrics.PersistFailures))
	m.PersistDropped = int64(metrics.CounterValue(metrics.PersistDropped))
	m.PendingPersist = s.bus.Pending()
	return m
}

// GetCachedEvents returns up to limit recent events, newest first. A
// non-positive limit returns the whole buffer.
func (s *Service) GetCachedEvents(limit int) []events.Event {
	if limit <= 0 {
		limit = s.recent.Cap()
	}
	return s.recent.Latest(limit)
}

// ResetMetrics clears the counters and the event cache.
func (s *Service) ResetMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent.Reset()
	s.total = 0
	s.bySeverity = make(map[events.Severity]int64)
	s.byType = make(map[events.EventType]int64)
	s.lastEvent = time.Time{}
}
