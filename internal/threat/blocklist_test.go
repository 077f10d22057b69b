// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package threat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingBlockStore struct{}

func (failingBlockStore) Put(context.Context, BlockEntry) error { return errors.New("disk full") }
func (failingBlockStore) Delete(context.Context, string) error { return errors.New("disk full") }
func (failingBlockStore) List(context.Context) ([]BlockEntry, error) { return nil, errors.New("disk full") }

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBlocklist_BlockAndExpire(t *testing.T) {
	clock := &fakeClock{now: testNow}
	bl := NewBlocklist(nil, clock.Now)
	ctx := context.Background()

	entry, err := bl.Block(ctx, "203.0.113.9", "brute force", time.Hour, true)
	if err != nil {
		t.Fatal(err)
	}
	if entry.ExpiresAt == nil || !entry.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", entry.ExpiresAt)
	}
	if !bl.IsBlocked("203.0.113.9") {
		t.Fatal("IsBlocked = false right after Block")
	}

	clock.Advance(time.Hour)
	if bl.IsBlocked("203.0.113.9") {
		t.Error("IsBlocked = true after TTL elapsed")
	}
	if bl.Len() != 0 {
		t.Errorf("expired entry not evicted, Len = %d", bl.Len())
	}
}

func TestBlocklist_Unblock(t *testing.T) {
	bl := NewBlocklist(nil, nil)
	ctx := context.Background()

	if _, err := bl.Block(ctx, "2001:db8::1", "manual", 0, false); err != nil {
		t.Fatal(err)
	}
	existed, err := bl.Unblock(ctx, "2001:0db8:0000::1")
	if err != nil {
		t.Fatal(err)
	}
	if !existed {
		t.Error("Unblock of equivalent IPv6 spelling reported no entry")
	}
	if bl.IsBlocked("2001:db8::1") {
		t.Error("still blocked after Unblock")
	}

	existed, err = bl.Unblock(ctx, "2001:db8::1")
	if err != nil || existed {
		t.Errorf("second Unblock = %v, %v; want false, nil", existed, err)
	}
}

func TestBlocklist_InvalidIP(t *testing.T) {
	bl := NewBlocklist(nil, nil)
	if _, err := bl.Block(context.Background(), "10.0.0.300", "x", 0, false); !errors.Is(err, ErrInvalidIP) {
		t.Errorf("err = %v, want ErrInvalidIP", err)
	}
	if bl.IsBlocked("garbage") {
		t.Error("IsBlocked(garbage) = true")
	}
}

func TestBlocklist_MappedIPv4(t *testing.T) {
	bl := NewBlocklist(nil, nil)
	if _, err := bl.Block(context.Background(), "::ffff:192.0.2.5", "x", 0, false); err != nil {
		t.Fatal(err)
	}
	if !bl.IsBlocked("192.0.2.5") {
		t.Error("IPv4-mapped block does not match the plain IPv4 address")
	}
}

func TestBlocklist_ListAndSweep(t *testing.T) {
	clock := &fakeClock{now: testNow}
	bl := NewBlocklist(nil, clock.Now)
	ctx := context.Background()

	mustBlock := func(ip string, ttl time.Duration) {
		t.Helper()
		if _, err := bl.Block(ctx, ip, "test", ttl, false); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
	}
	mustBlock("192.0.2.1", 0)
	mustBlock("192.0.2.2", time.Minute)
	mustBlock("192.0.2.3", time.Hour)

	clock.Advance(2 * time.Minute)
	list := bl.List()
	if len(list) != 2 || list[0].IP != "192.0.2.1" || list[1].IP != "192.0.2.3" {
		t.Errorf("List = %+v", list)
	}

	if removed := bl.Sweep(clock.Now()); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if got := testutil.ToFloat64(metrics.BlockedIPs); got != 2 {
		t.Errorf("blocked gauge = %v, want 2", got)
	}
}

func TestBlocklist_StoreFailureDoesNotFailBlock(t *testing.T) {
	bl := NewBlocklist(failingBlockStore{}, nil)
	ctx := context.Background()

	if _, err := bl.Block(ctx, "192.0.2.8", "x", 0, false); err != nil {
		t.Fatalf("Block returned %v with a failing store", err)
	}
	if !bl.IsBlocked("192.0.2.8") {
		t.Error("block not applied in memory")
	}
	if _, err := bl.Restore(ctx); err == nil {
		t.Error("Restore swallowed the store error")
	}
}

func TestBadgerBlocklistStore_Restore(t *testing.T) {
	db := openTestBadger(t)
	store := NewBadgerBlocklistStore(db)
	ctx := context.Background()

	first := NewBlocklist(store, nil)
	if _, err := first.Block(ctx, "192.0.2.20", "permanent", 0, false); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Block(ctx, "192.0.2.21", "temporary", time.Hour, true); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Block(ctx, "192.0.2.22", "removed", 0, false); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Unblock(ctx, "192.0.2.22"); err != nil {
		t.Fatal(err)
	}

	second := NewBlocklist(store, nil)
	n, err := second.Restore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("restored %d entries, want 2", n)
	}
	if !second.IsBlocked("192.0.2.20") || !second.IsBlocked("192.0.2.21") {
		t.Error("restored blocklist is missing entries")
	}
	if second.IsBlocked("192.0.2.22") {
		t.Error("unblocked entry came back after restore")
	}

	entry, ok := second.Get("192.0.2.21")
	if !ok || !entry.Automatic || entry.ExpiresAt == nil {
		t.Errorf("restored entry = %+v", entry)
	}
}

func TestBadgerBlocklistStore_SkipsExpired(t *testing.T) {
	db := openTestBadger(t)
	store := NewBadgerBlocklistStore(db)

	past := time.Now().Add(-time.Minute)
	if err := store.Put(context.Background(), BlockEntry{IP: "192.0.2.30", ExpiresAt: &past}); err != nil {
		t.Fatal(err)
	}
	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("already expired entry was stored: %+v", entries)
	}
}
