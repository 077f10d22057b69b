// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package eventprocessor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// mockJetStream records stream management calls.
type mockJetStream struct {
	mu        sync.Mutex
	exists    bool
	lookupErr error
	createErr error
	updateErr error
	created   []jetstream.StreamConfig
	updated   []jetstream.StreamConfig
}

func (m *mockJetStream) Stream(_ context.Context, _ string) (jetstream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if !m.exists {
		return nil, jetstream.ErrStreamNotFound
	}
	return nil, nil
}

func (m *mockJetStream) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, cfg)
	m.exists = true
	return nil, nil
}

func (m *mockJetStream) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.updated = append(m.updated, cfg)
	return nil, nil
}

func TestNewStreamInitializer_Validation(t *testing.T) {
	if _, err := NewStreamInitializer(nil, DefaultStreamConfig("S", "p")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil context: err = %v, want ErrInvalidConfig", err)
	}

	cfg := DefaultStreamConfig("", "p")
	if _, err := NewStreamInitializer(&mockJetStream{}, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty name: err = %v, want ErrInvalidConfig", err)
	}

	cfg = DefaultStreamConfig("S", "p")
	cfg.Subjects = nil
	if _, err := NewStreamInitializer(&mockJetStream{}, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("no subjects: err = %v, want ErrInvalidConfig", err)
	}
}

func TestEnsureStream_CreatesWhenMissing(t *testing.T) {
	js := &mockJetStream{}
	si, err := NewStreamInitializer(js, DefaultStreamConfig("SECURITY_EVENTS", "security.events"))
	if err != nil {
		t.Fatalf("NewStreamInitializer: %v", err)
	}

	if _, err := si.EnsureStream(context.Background()); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}
	if len(js.created) != 1 || len(js.updated) != 0 {
		t.Fatalf("created=%d updated=%d, want 1/0", len(js.created), len(js.updated))
	}

	got := js.created[0]
	if got.Name != "SECURITY_EVENTS" {
		t.Errorf("Name = %q", got.Name)
	}
	if len(got.Subjects) != 1 || got.Subjects[0] != "security.events.>" {
		t.Errorf("Subjects = %v", got.Subjects)
	}
	if got.Storage != jetstream.FileStorage {
		t.Errorf("Storage = %v, want file", got.Storage)
	}
	if got.Discard != jetstream.DiscardOld {
		t.Errorf("Discard = %v, want old", got.Discard)
	}
	if got.Duplicates != 2*time.Minute {
		t.Errorf("Duplicates = %v, want 2m", got.Duplicates)
	}
}

func TestEnsureStream_UpdatesWhenPresent(t *testing.T) {
	js := &mockJetStream{exists: true}
	si, err := NewStreamInitializer(js, DefaultStreamConfig("SECURITY_EVENTS", "security.events"))
	if err != nil {
		t.Fatalf("NewStreamInitializer: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := si.EnsureStream(context.Background()); err != nil {
			t.Fatalf("EnsureStream #%d: %v", i, err)
		}
	}
	if len(js.created) != 0 || len(js.updated) != 2 {
		t.Errorf("created=%d updated=%d, want 0/2", len(js.created), len(js.updated))
	}
}

func TestEnsureStream_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		js   *mockJetStream
	}{
		{"lookup fails", &mockJetStream{lookupErr: boom}},
		{"create fails", &mockJetStream{createErr: boom}},
		{"update fails", &mockJetStream{exists: true, updateErr: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			si, err := NewStreamInitializer(tt.js, DefaultStreamConfig("S", "p"))
			if err != nil {
				t.Fatalf("NewStreamInitializer: %v", err)
			}
			if _, err := si.EnsureStream(context.Background()); !errors.Is(err, boom) {
				t.Errorf("err = %v, want wrapped boom", err)
			}
		})
	}
}

func TestStreamInitializer_Health(t *testing.T) {
	js := &mockJetStream{}
	si, err := NewStreamInitializer(js, DefaultStreamConfig("S", "p"))
	if err != nil {
		t.Fatalf("NewStreamInitializer: %v", err)
	}

	ctx := context.Background()
	if si.IsHealthy(ctx) {
		t.Error("IsHealthy before creation = true")
	}
	if _, err := si.StreamInfo(ctx); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("StreamInfo err = %v, want ErrStreamNotFound", err)
	}

	if _, err := si.EnsureStream(ctx); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}
	if !si.IsHealthy(ctx) {
		t.Error("IsHealthy after creation = false")
	}
}
