// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedEvents(t *testing.T, s Store, base time.Time) []Event {
	t.Helper()
	evts := []Event{
		{ID: "e1", Type: TypeAuthFailure, Severity: SeverityMedium, Source: SourceUser, UserID: "alice", CorrelationID: "c1", Timestamp: base},
		{ID: "e2", Type: TypeAuthFailure, Severity: SeverityMedium, Source: SourceUser, UserID: "bob", CorrelationID: "c2", Timestamp: base.Add(time.Minute)},
		{ID: "e3", Type: TypeThreatDetected, Severity: SeverityHigh, Source: SourceSystem, CorrelationID: "c1", IPAddress: "10.1.1.1", Timestamp: base.Add(2 * time.Minute)},
		{ID: "e4", Type: TypeDataExport, Severity: SeverityMedium, Source: SourceUser, UserID: "alice", SessionID: "s1", CorrelationID: "c3", Timestamp: base.Add(3 * time.Minute)},
	}
	// Saved out of order on purpose.
	for _, i := range []int{2, 0, 3, 1} {
		if err := s.Save(context.Background(), &evts[i]); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	return evts
}

func ids(evts []Event) []string {
	out := make([]string, len(evts))
	for i := range evts {
		out[i] = evts[i].ID
	}
	return out
}

func TestMemoryStore_QueryFilters(t *testing.T) {
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	start := base.Add(90 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"e4", "e3", "e2", "e1"}},
		{"by type", Filter{Types: []EventType{TypeAuthFailure}}, []string{"e2", "e1"}},
		{"by severity", Filter{Severities: []Severity{SeverityHigh}}, []string{"e3"}},
		{"by source", Filter{Sources: []Source{SourceSystem}}, []string{"e3"}},
		{"by user", Filter{UserID: "alice"}, []string{"e4", "e1"}},
		{"by correlation", Filter{CorrelationID: "c1"}, []string{"e3", "e1"}},
		{"by session", Filter{SessionID: "s1"}, []string{"e4"}},
		{"by ip", Filter{IPAddress: "10.1.1.1"}, []string{"e3"}},
		{"since", Filter{StartTime: &start}, []string{"e4", "e3"}},
		{"limit", Filter{Limit: 2}, []string{"e4", "e3"}},
		{"offset", Filter{Limit: 2, Offset: 1}, []string{"e3", "e2"}},
		{"offset past end", Filter{Offset: 10}, nil},
	}

	store := NewMemoryStore(100)
	seedEvents(t, store, base)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tt.want) {
				t.Fatalf("got %v, want %v", gotIDs, tt.want)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", gotIDs, tt.want)
				}
			}
		})
	}
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	store := NewMemoryStore(10)
	base := time.Now().UTC()
	for i := 0; i < 11; i++ {
		e := Event{ID: string(rune('a' + i)), Type: TypeDataRead, Severity: SeverityLow, Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := store.Save(context.Background(), &e); err != nil {
			t.Fatal(err)
		}
	}
	if store.Len() != 10 {
		t.Fatalf("Len = %d, want 10", store.Len())
	}
	got, _ := store.Query(context.Background(), Filter{Types: []EventType{TypeDataRead}, Limit: 100})
	for _, e := range got {
		if e.ID == "a" {
			t.Error("oldest event was not evicted")
		}
	}
}

func TestMemoryStore_DeleteAndStats(t *testing.T) {
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	store := NewMemoryStore(100)
	seedEvents(t, store, base)

	stats, err := store.Stats(context.Background(), base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.BySource[string(SourceUser)] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	deleted, err := store.Delete(context.Background(), base.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 || store.Len() != 2 {
		t.Errorf("deleted %d, %d left; want 2 and 2", deleted, store.Len())
	}
}

func TestFilterNormalize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultQueryLimit},
		{-3, DefaultQueryLimit},
		{50, 50},
		{5000, 1000},
	}
	for _, tt := range tests {
		if got := (Filter{Limit: tt.in}).normalize(1000).Limit; got != tt.want {
			t.Errorf("normalize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseWindow(t *testing.T) {
	for _, s := range []string{"1h", "24h", "7d", "30d"} {
		w, err := ParseWindow(s)
		if err != nil {
			t.Errorf("ParseWindow(%q): %v", s, err)
		}
		if w.Duration() <= 0 {
			t.Errorf("%q has no duration", s)
		}
	}
	for _, s := range []string{"", "2h", "1w", "30D"} {
		if _, err := ParseWindow(s); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("ParseWindow(%q) err = %v, want ErrInvalidWindow", s, err)
		}
	}
}

func TestRegistries(t *testing.T) {
	for _, typ := range EventTypes() {
		if typ.Category() == "" {
			t.Errorf("%s has no category", typ)
		}
		if _, err := ParseEventType(string(typ)); err != nil {
			t.Errorf("ParseEventType(%s): %v", typ, err)
		}
	}
	if _, err := ParseEventType("auth.success"); !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("unregistered type accepted: %v", err)
	}

	if !SeverityCritical.AtLeast(SeverityHigh) || SeverityLow.AtLeast(SeverityMedium) {
		t.Error("severity ordering is wrong")
	}
	if _, err := ParseSeverity("warning"); !errors.Is(err, ErrInvalidSeverity) {
		t.Errorf("ParseSeverity(warning) err = %v", err)
	}
	if Source("robot").Valid() {
		t.Error("unknown source accepted")
	}
}
