// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) RunWithContext(ctx context.Context) error { return f(ctx) }

func TestRunnerService_StopsOnCancel(t *testing.T) {
	started := make(chan struct{})
	svc := NewRunnerService("event-persister", runnerFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-started
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	if svc.String() != "event-persister" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestRunnerService_RecoversPanic(t *testing.T) {
	svc := NewRunnerService("blocklist-sweeper", runnerFunc(func(context.Context) error {
		panic("nil blocklist")
	}))

	err := svc.Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "blocklist-sweeper panicked") {
		t.Errorf("err = %v, want panic error", err)
	}
}

type fakeCleaner struct {
	mu    sync.Mutex
	calls []int
	err   error
	ran   chan struct{}
}

func (f *fakeCleaner) CleanupOldEvents(_ context.Context, days int) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, days)
	f.mu.Unlock()
	select {
	case f.ran <- struct{}{}:
	default:
	}
	return 3, f.err
}

func (f *fakeCleaner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRetentionService_RunsImmediatelyAndOnTicks(t *testing.T) {
	cleaner := &fakeCleaner{ran: make(chan struct{}, 8)}
	svc := NewRetentionService(cleaner, 2555, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-cleaner.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("cleanup pass %d did not run", i)
		}
	}
	cancel()
	<-done

	cleaner.mu.Lock()
	defer cleaner.mu.Unlock()
	for _, d := range cleaner.calls {
		if d != 2555 {
			t.Errorf("retention days = %d, want 2555", d)
		}
	}
}

func TestRetentionService_SurvivesErrors(t *testing.T) {
	cleaner := &fakeCleaner{ran: make(chan struct{}, 8), err: errors.New("store offline")}
	svc := NewRetentionService(cleaner, 30, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve err = %v, want DeadlineExceeded", err)
	}
	if cleaner.count() < 2 {
		t.Errorf("cleanup ran %d times, want repeated attempts", cleaner.count())
	}
}
