// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/config"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Enabled = false
	cfg.NATS.Enabled = false
	cfg.Server.Enabled = false
	cfg.Threat.BlocklistPath = filepath.Join(t.TempDir(), "blocklist")
	cfg.Supervisor.ShutdownTimeout = time.Second
	return cfg
}

func TestApp_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	attempt := service.AuthAttempt{UserID: "operator-12", IPAddress: "203.0.113.50", Method: "badge"}
	for i := 0; i < 5; i++ {
		if _, err := a.svc.EmitAuthFailure(ctx, attempt); err != nil {
			t.Fatalf("EmitAuthFailure #%d: %v", i, err)
		}
	}
	if got := a.svc.LockoutState(service.UserKey("operator-12")); got != service.StateLocked {
		t.Errorf("lockout state = %s, want LOCKED", got)
	}

	if _, err := a.svc.EmitThreatDetected(ctx, service.ThreatReport{
		ThreatType:  "credential_stuffing",
		IPAddress:   "198.51.100.9",
		Description: "distributed login failures",
		Score:       0.9,
	}); err != nil {
		t.Fatalf("EmitThreatDetected: %v", err)
	}
	if !a.svc.IsIPBlocked("198.51.100.9") {
		t.Error("critical threat did not block the source IP")
	}

	report := a.health.Run(ctx)
	if report.Status != "ok" {
		t.Errorf("health = %q, checks %+v", report.Status, report.Checks)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}
	if err := a.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if a.bus.Pending() != 0 {
		t.Errorf("pending after close = %d", a.bus.Pending())
	}
	evts, err := a.bus.GetEvents(context.Background(), events.Filter{Types: []events.EventType{events.TypeAuthLockout}})
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(evts) != 1 {
		t.Errorf("lockout events = %d, want 1", len(evts))
	}
}

func TestApp_BlocklistSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if _, err := first.svc.BlockIP(ctx, "192.0.2.77", "manual review", time.Hour); err != nil {
		t.Fatalf("BlockIP: %v", err)
	}
	if err := first.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp (restart): %v", err)
	}
	defer second.close()

	if !second.svc.IsIPBlocked("192.0.2.77") {
		t.Error("block was not restored from badger")
	}
}
