// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/analyzer"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/config"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/threat"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	svc   *Service
	bus   *events.Bus
	store *events.MemoryStore
	clock *testClock
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	clock := newTestClock()
	store := events.NewMemoryStore(0)
	return newTestEnvOn(t, cfg, clock, store)
}

func newTestEnvOn(t *testing.T, cfg *config.Config, clock *testClock, store *events.MemoryStore) *testEnv {
	t.Helper()
	bus := events.NewBus(store, events.DefaultConfig(), events.WithClock(clock.Now))
	t.Cleanup(func() { _ = bus.Close() })

	an := analyzer.New(analyzer.Config{
		WindowSize: cfg.Analyzer.WindowSize,
		ZThreshold: cfg.Analyzer.ZThreshold,
		MinSamples: cfg.Analyzer.MinSamples,
	})
	agg := threat.NewAggregator(cfg.Threat, an, threat.WithClock(clock.Now))

	svc, err := New(bus, agg, cfg.Response, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{svc: svc, bus: bus, store: store, clock: clock}
}

func (e *testEnv) cachedOfType(et events.EventType) []events.Event {
	var out []events.Event
	for _, evt := range e.svc.GetCachedEvents(0) {
		if evt.Type == et {
			out = append(out, evt)
		}
	}
	return out
}

func withCorrelation(id string) context.Context {
	return events.WithEmitContext(context.Background(), events.EmitContext{CorrelationID: id})
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(nil, nil, config.Default().Response); err == nil {
		t.Error("New accepted a nil bus")
	}
	bus := events.NewBus(nil, events.DefaultConfig())
	defer bus.Close()
	if _, err := New(bus, nil, config.Default().Response); err == nil {
		t.Error("New accepted a nil aggregator")
	}
}

func TestAuthFailures_LockOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	attempt := AuthAttempt{UserID: "op-7", IPAddress: "10.1.2.3", Method: "badge", Reason: "bad pin"}

	var fifth *events.Event
	for i := 1; i <= 5; i++ {
		evt, err := env.svc.EmitAuthFailure(withCorrelation("login-burst"), attempt)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if i == 1 {
			if got := env.svc.LockoutState(UserKey("op-7")); got != StateWarning {
				t.Errorf("state after one failure = %s, want WARNING", got)
			}
		}
		fifth = evt
		env.clock.Advance(10 * time.Second)
	}

	lockouts := env.cachedOfType(events.TypeAuthLockout)
	if len(lockouts) != 1 {
		t.Fatalf("got %d lockouts, want 1", len(lockouts))
	}
	lock := lockouts[0]
	if lock.Severity != events.SeverityHigh || lock.Source != events.SourceSystem {
		t.Errorf("lockout severity/source = %s/%s", lock.Severity, lock.Source)
	}
	if lock.CorrelationID != fifth.CorrelationID {
		t.Errorf("lockout correlation = %q, want %q", lock.CorrelationID, fifth.CorrelationID)
	}
	var details lockoutDetails
	if err := lock.DecodeData(&details); err != nil {
		t.Fatal(err)
	}
	if details.Reason != "Multiple failed attempts" || details.TriggerEventID != fifth.ID || len(details.Keys) != 2 {
		t.Errorf("lockout details = %+v", details)
	}

	for _, key := range []string{UserKey("op-7"), IPKey("10.1.2.3")} {
		if got := env.svc.LockoutState(key); got != StateLocked {
			t.Errorf("%s state = %s, want LOCKED", key, got)
		}
	}

	if _, err := env.svc.EmitAuthFailure(context.Background(), attempt); err != nil {
		t.Fatal(err)
	}
	if n := len(env.cachedOfType(events.TypeAuthLockout)); n != 1 {
		t.Errorf("sixth failure while locked produced %d lockouts total, want 1", n)
	}
	if got := env.svc.GetMetrics().Lockouts; got != 1 {
		t.Errorf("metrics lockouts = %d, want 1", got)
	}

	if _, err := env.svc.EmitUnlock(context.Background(), UnlockRequest{UserID: "op-7", By: "shift-supervisor"}); err != nil {
		t.Fatal(err)
	}
	if got := env.svc.LockoutState(UserKey("op-7")); got != StateNormal {
		t.Errorf("state after unlock = %s, want NORMAL", got)
	}
	if got := env.svc.LockoutState(IPKey("10.1.2.3")); got != StateLocked {
		t.Errorf("IP key state after user unlock = %s, want LOCKED", got)
	}
}

func TestAuthFailures_LockExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 5; i++ {
		if _, err := env.svc.EmitAuthFailure(context.Background(), AuthAttempt{Username: "night-shift"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := env.svc.LockoutState(UserKey("night-shift")); got != StateLocked {
		t.Fatalf("state = %s, want LOCKED", got)
	}

	env.clock.Advance(config.Default().Response.LockoutDuration)
	if got := env.svc.LockoutState(UserKey("night-shift")); got != StateNormal {
		t.Errorf("state after lock duration = %s, want NORMAL", got)
	}
}

func TestRebuildLockouts(t *testing.T) {
	cfg := config.Default()
	clock := newTestClock()
	store := events.NewMemoryStore(0)

	first := newTestEnvOn(t, cfg, clock, store)
	for i := 0; i < 5; i++ {
		if _, err := first.svc.EmitAuthFailure(context.Background(), AuthAttempt{UserID: "op-9"}); err != nil {
			t.Fatal(err)
		}
	}
	flushBus(t, first.bus)

	second := newTestEnvOn(t, cfg, clock, store)
	if got := second.svc.LockoutState(UserKey("op-9")); got != StateNormal {
		t.Fatalf("fresh service state = %s, want NORMAL", got)
	}
	if err := second.svc.RebuildLockouts(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := second.svc.LockoutState(UserKey("op-9")); got != StateLocked {
		t.Errorf("rebuilt state = %s, want LOCKED", got)
	}
}

func TestThreatDetected_AutoBlocks(t *testing.T) {
	env := newTestEnv(t, nil)
	report := ThreatReport{ThreatType: "port_scan", IPAddress: "203.0.113.50", Score: 0.7}

	evt, err := env.svc.EmitThreatDetected(withCorrelation("scan-1"), report)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Severity != events.SeverityHigh {
		t.Errorf("severity = %s, want high", evt.Severity)
	}
	if !env.svc.IsIPBlocked("203.0.113.50") {
		t.Fatal("IP not blocked after threat detection")
	}

	blocked := env.cachedOfType(events.TypeThreatBlocked)
	if len(blocked) != 1 {
		t.Fatalf("got %d threat_blocked events, want 1", len(blocked))
	}
	if blocked[0].CorrelationID != "scan-1" {
		t.Errorf("threat_blocked correlation = %q", blocked[0].CorrelationID)
	}
	var details blockDetails
	if err := blocked[0].DecodeData(&details); err != nil {
		t.Fatal(err)
	}
	if details.TriggerEventID != evt.ID || details.ExpiresAt == nil {
		t.Errorf("block details = %+v", details)
	}

	if _, err := env.svc.EmitThreatDetected(context.Background(), report); err != nil {
		t.Fatal(err)
	}
	if n := len(env.cachedOfType(events.TypeThreatBlocked)); n != 1 {
		t.Errorf("repeat detection produced %d threat_blocked events, want 1", n)
	}

	entry := env.svc.Aggregator().ListBlocked()[0]
	if !entry.Automatic {
		t.Error("automatic block not marked automatic")
	}
}

func TestThreatDetected_AutoBlockDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Response.AutoBlock = false })

	if _, err := env.svc.EmitThreatDetected(context.Background(), ThreatReport{ThreatType: "port_scan", IPAddress: "203.0.113.51", Score: 0.95}); err != nil {
		t.Fatal(err)
	}
	if env.svc.IsIPBlocked("203.0.113.51") {
		t.Error("IP blocked with AutoBlock disabled")
	}
}

func TestThreatDetected_ConcurrentDetectionsBlockOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	report := ThreatReport{ThreatType: "credential_stuffing", IPAddress: "203.0.113.60", Score: 0.9}

	const n = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct users so alert suppression alone cannot dedupe.
			ctx := events.WithEmitContext(context.Background(), events.EmitContext{
				CorrelationID: fmt.Sprintf("stuff-%d", i),
				UserID:        fmt.Sprintf("operator-%d", i),
			})
			<-start
			if _, err := env.svc.EmitThreatDetected(ctx, report); err != nil {
				t.Error(err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if n := len(env.cachedOfType(events.TypeThreatBlocked)); n != 1 {
		t.Errorf("got %d threat_blocked events, want 1", n)
	}
	if !env.svc.IsIPBlocked("203.0.113.60") {
		t.Error("IP not blocked")
	}
}

func TestThreatDetected_CriticalScore(t *testing.T) {
	env := newTestEnv(t, nil)
	evt, err := env.svc.EmitThreatDetected(context.Background(), ThreatReport{ThreatType: "ransomware", Score: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if evt.Severity != events.SeverityCritical {
		t.Errorf("severity = %s, want critical", evt.Severity)
	}
}

func TestManualBlockAndUnblock(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.svc.BlockIP(ctx, "198.51.100.77", "manual review", time.Hour); err != nil {
		t.Fatal(err)
	}
	if !env.svc.IsIPBlocked("198.51.100.77") {
		t.Fatal("not blocked")
	}
	existed, err := env.svc.UnblockIP(ctx, "198.51.100.77")
	if err != nil || !existed {
		t.Fatalf("UnblockIP = %v, %v", existed, err)
	}
	if env.svc.IsIPBlocked("198.51.100.77") {
		t.Error("still blocked")
	}
	if n := len(env.cachedOfType(events.TypeThreatBlocked)); n != 1 {
		t.Errorf("threat_blocked events = %d, want 1", n)
	}
	if n := len(env.cachedOfType(events.TypeThreatUnblocked)); n != 1 {
		t.Errorf("threat.unblocked events = %d, want 1", n)
	}

	if _, err := env.svc.BlockIP(ctx, "nope", "x", 0); !errors.Is(err, threat.ErrInvalidIP) {
		t.Errorf("err = %v, want ErrInvalidIP", err)
	}
}

func TestComplianceViolation_Report(t *testing.T) {
	env := newTestEnv(t, nil)

	evt, err := env.svc.EmitComplianceViolation(withCorrelation("audit-3"), ComplianceViolation{
		Regulation:  "IEC-61215",
		Requirement: "EL inspection before lamination",
		StationID:   "EL-02",
	})
	if err != nil {
		t.Fatal(err)
	}

	reports := env.cachedOfType(events.TypeComplianceReport)
	if len(reports) != 1 {
		t.Fatalf("got %d compliance reports, want 1", len(reports))
	}
	var report complianceReport
	if err := reports[0].DecodeData(&report); err != nil {
		t.Fatal(err)
	}
	if report.ViolationEventID != evt.ID || report.Regulation != "IEC-61215" || report.StationID != "EL-02" {
		t.Errorf("report = %+v", report)
	}

	var raw map[string]interface{}
	if err := reports[0].DecodeData(&raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"violation_event_id", "regulation", "requirement", "station_id", "reported_at"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("report payload missing %q: %v", key, raw)
		}
	}
	if reports[0].CorrelationID != "audit-3" || reports[0].Severity != events.SeverityMedium {
		t.Errorf("report event = %+v", reports[0])
	}
}

func TestObserve_DataBurstRaisesAnomalyOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := events.WithEmitContext(context.Background(), events.EmitContext{UserID: "analyst-4", IPAddress: "10.9.8.7"})

	suppressedBefore := testutil.ToFloat64(metrics.AlertsSuppressed.WithLabelValues(string(events.TypeAnomaly)))

	threshold := config.Default().Threat.DataExportThreshold
	for i := 0; i < threshold+5; i++ {
		if _, err := env.svc.EmitDataAccess(ctx, DataAccess{Resource: "panel_test_results", Operation: DataOperationRead, RecordCount: 500}); err != nil {
			t.Fatal(err)
		}
		if i == threshold-2 && len(env.cachedOfType(events.TypeAnomaly)) != 0 {
			t.Fatal("anomaly raised below the burst threshold")
		}
		env.clock.Advance(time.Second)
	}

	anomalies := env.cachedOfType(events.TypeAnomaly)
	if len(anomalies) != 1 {
		t.Fatalf("got %d anomalies, want 1", len(anomalies))
	}
	var details anomalyDetails
	if err := anomalies[0].DecodeData(&details); err != nil {
		t.Fatal(err)
	}
	if details.Key != "data.read:analyst-4" || len(details.RuleIDs) == 0 {
		t.Errorf("anomaly details = %+v", details)
	}
	if got := testutil.ToFloat64(metrics.AlertsSuppressed.WithLabelValues(string(events.TypeAnomaly))) - suppressedBefore; got != 5 {
		t.Errorf("suppressed alerts = %v, want 5", got)
	}
	if env.svc.IsIPBlocked("10.9.8.7") {
		t.Error("observation blocked an IP")
	}
}

func TestObserve_DisabledAnomalyEmission(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Response.ObserveEmitsAnomaly = false })
	ctx := events.WithEmitContext(context.Background(), events.EmitContext{UserID: "analyst-5"})

	for i := 0; i < config.Default().Threat.DataExportThreshold; i++ {
		if _, err := env.svc.EmitDataAccess(ctx, DataAccess{Resource: "cells", Operation: DataOperationExport}); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(env.cachedOfType(events.TypeAnomaly)); n != 0 {
		t.Errorf("got %d anomalies with emission disabled", n)
	}
}

func TestEmitters_TypesAndSeverities(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		emit     func() (*events.Event, error)
		wantType events.EventType
		wantSev  events.Severity
	}{
		{"auth success", func() (*events.Event, error) {
			return env.svc.EmitAuthSuccess(ctx, AuthAttempt{UserID: "op-1", Method: "password"})
		}, events.TypeAuthSuccess, events.SeverityLow},
		{"station access", func() (*events.Event, error) {
			return env.svc.EmitManufacturingEvent(ctx, ManufacturingActivity{StationID: "LAM-3", Action: "start_batch", OperatorID: "op-2"})
		}, events.TypeStationAccess, events.SeverityLow},
		{"equipment error", func() (*events.Event, error) {
			return env.svc.EmitEquipmentError(ctx, EquipmentFault{StationID: "STR-1", Code: "E42"})
		}, events.TypeEquipmentError, events.SeverityMedium},
		{"data write", func() (*events.Event, error) {
			return env.svc.EmitDataAccess(ctx, DataAccess{Resource: "batches", Operation: DataOperationWrite})
		}, events.TypeDataWrite, events.SeverityLow},
		{"data delete", func() (*events.Event, error) {
			return env.svc.EmitDataAccess(ctx, DataAccess{Resource: "batches", Operation: DataOperationDelete})
		}, events.TypeDataDelete, events.SeverityMedium},
		{"compliance", func() (*events.Event, error) {
			return env.svc.EmitComplianceViolation(ctx, ComplianceViolation{Regulation: "UL-1703", Requirement: "wet leakage"})
		}, events.TypeComplianceViolation, events.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := tt.emit()
			if err != nil {
				t.Fatal(err)
			}
			if evt.Type != tt.wantType || evt.Severity != tt.wantSev {
				t.Errorf("got %s/%s, want %s/%s", evt.Type, evt.Severity, tt.wantType, tt.wantSev)
			}
		})
	}
}

func TestEmitters_RejectInvalidPayload(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	before := env.svc.GetMetrics().TotalEvents

	tests := []struct {
		name string
		emit func() error
	}{
		{"missing resource", func() error {
			_, err := env.svc.EmitDataAccess(ctx, DataAccess{Operation: DataOperationRead})
			return err
		}},
		{"unknown operation", func() error {
			_, err := env.svc.EmitDataAccess(ctx, DataAccess{Resource: "x", Operation: "truncate"})
			return err
		}},
		{"bad ip", func() error {
			_, err := env.svc.EmitAuthFailure(ctx, AuthAttempt{UserID: "u", IPAddress: "999.1.1.1"})
			return err
		}},
		{"no user", func() error {
			_, err := env.svc.EmitAuthSuccess(ctx, AuthAttempt{})
			return err
		}},
		{"bad station", func() error {
			_, err := env.svc.EmitManufacturingEvent(ctx, ManufacturingActivity{StationID: "has spaces", Action: "x"})
			return err
		}},
		{"score out of range", func() error {
			_, err := env.svc.EmitThreatDetected(ctx, ThreatReport{ThreatType: "x", Score: 1.5})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.emit()
			if !errors.Is(err, events.ErrInvalidPayload) {
				t.Errorf("err = %v, want ErrInvalidPayload", err)
			}
		})
	}
	if got := env.svc.GetMetrics().TotalEvents; got != before {
		t.Errorf("rejected payloads were counted: %d -> %d", before, got)
	}
}

func TestGetMetrics_ConcurrentEmits(t *testing.T) {
	env := newTestEnv(t, nil)
	const n = 64

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := withCorrelation(fmt.Sprintf("req-%d", i))
			if _, err := env.svc.EmitAuthSuccess(ctx, AuthAttempt{UserID: fmt.Sprintf("op-%d", i)}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	m := env.svc.GetMetrics()
	if m.TotalEvents != n {
		t.Errorf("TotalEvents = %d, want %d", m.TotalEvents, n)
	}
	if m.EventsByType[events.TypeAuthSuccess] != n || m.EventsBySeverity[events.SeverityLow] != n {
		t.Errorf("breakdown = %+v / %+v", m.EventsByType, m.EventsBySeverity)
	}
	if m.CacheSize != n || m.CacheCapacity != DefaultCacheSize {
		t.Errorf("cache = %d/%d", m.CacheSize, m.CacheCapacity)
	}

	flushBus(t, env.bus)
	for i := 0; i < n; i += 16 {
		got, err := env.svc.GetEvents(context.Background(), events.Filter{CorrelationID: fmt.Sprintf("req-%d", i)})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].UserID != fmt.Sprintf("op-%d", i) {
			t.Errorf("req-%d round trip = %+v", i, got)
		}
	}
}

func TestGetCachedEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 5; i++ {
		if _, err := env.svc.EmitAuthSuccess(context.Background(), AuthAttempt{UserID: fmt.Sprintf("op-%d", i)}); err != nil {
			t.Fatal(err)
		}
		env.clock.Advance(time.Second)
	}

	latest := env.svc.GetCachedEvents(2)
	if len(latest) != 2 || latest[0].UserID != "op-4" || latest[1].UserID != "op-3" {
		t.Errorf("GetCachedEvents(2) = %+v", latest)
	}
	if all := env.svc.GetCachedEvents(0); len(all) != 5 {
		t.Errorf("GetCachedEvents(0) returned %d", len(all))
	}

	env.svc.ResetMetrics()
	if m := env.svc.GetMetrics(); m.TotalEvents != 0 || m.CacheSize != 0 {
		t.Errorf("after reset: %+v", m)
	}
}

func TestGetEventStatistics(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 3; i++ {
		if _, err := env.svc.EmitAuthSuccess(context.Background(), AuthAttempt{UserID: "op-1"}); err != nil {
			t.Fatal(err)
		}
	}
	flushBus(t, env.bus)

	stats, err := env.svc.GetEventStatistics(context.Background(), events.WindowDay)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.ByType[string(events.TypeAuthSuccess)] != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func flushBus(t *testing.T, bus *events.Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bus.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
