// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package threat

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
)

// BlockEntry is one blocked address.
type BlockEntry struct {
	IP        string     `json:"ip"`
	Reason    string     `json:"reason"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Automatic bool       `json:"automatic"`
}

// Expired reports whether the entry has lapsed at now. Permanent entries
// never expire.
func (e *BlockEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// BlocklistStore persists blocks so they survive restarts.
type BlocklistStore interface {
	Put(ctx context.Context, entry BlockEntry) error
	Delete(ctx context.Context, ip string) error
	List(ctx context.Context) ([]BlockEntry, error)
}

// NormalizeIP validates ip and returns its canonical text form.
func NormalizeIP(ip string) (string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return addr.Unmap().String(), nil
}

// Blocklist is the set of blocked IPs.
type Blocklist struct {
	mu      sync.RWMutex
	entries map[string]BlockEntry
	store   BlocklistStore
	now     func() time.Time
	logger  zerolog.Logger
}

// NewBlocklist creates a blocklist. store may be nil for memory-only use.
func NewBlocklist(store BlocklistStore, now func() time.Time) *Blocklist {
	if now == nil {
		now = time.Now
	}
	return &Blocklist{
		entries: make(map[string]BlockEntry),
		store:   store,
		now:     now,
		logger:  logging.WithComponent("blocklist"),
	}
}

// Block adds or replaces a block. ttl <= 0 blocks until Unblock.
// Persistence failures are logged and do not fail the block.
func (b *Blocklist) Block(ctx context.Context, ip, reason string, ttl time.Duration, automatic bool) (BlockEntry, error) {
	canonical, err := NormalizeIP(ip)
	if err != nil {
		return BlockEntry{}, err
	}

	now := b.now().UTC()
	entry := BlockEntry{IP: canonical, Reason: reason, BlockedAt: now, Automatic: automatic}
	if ttl > 0 {
		exp := now.Add(ttl)
		entry.ExpiresAt = &exp
	}

	b.mu.Lock()
	b.entries[canonical] = entry
	n := len(b.entries)
	b.mu.Unlock()

	metrics.RecordIPBlock(automatic)
	metrics.UpdateBlockedIPs(n)
	b.logger.Warn().
		Str("ip", canonical).
		Str("reason", reason).
		Dur("ttl", ttl).
		Bool("automatic", automatic).
		Msg("IP blocked")

	if b.store != nil {
		if err := b.store.Put(ctx, entry); err != nil {
			b.logger.Error().Err(err).Str("ip", canonical).Msg("Failed to persist IP block")
		}
	}
	return entry, nil
}

// Unblock removes a block and reports whether one existed.
func (b *Blocklist) Unblock(ctx context.Context, ip string) (bool, error) {
	canonical, err := NormalizeIP(ip)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	_, existed := b.entries[canonical]
	delete(b.entries, canonical)
	n := len(b.entries)
	b.mu.Unlock()

	metrics.UpdateBlockedIPs(n)
	if existed {
		b.logger.Info().Str("ip", canonical).Msg("IP unblocked")
	}

	if b.store != nil {
		if err := b.store.Delete(ctx, canonical); err != nil {
			b.logger.Error().Err(err).Str("ip", canonical).Msg("Failed to delete persisted IP block")
		}
	}
	return existed, nil
}

// IsBlocked reports whether ip is blocked now. An expired entry counts as
// unblocked and is evicted.
func (b *Blocklist) IsBlocked(ip string) bool {
	_, ok := b.Get(ip)
	return ok
}

// Get returns the active entry for ip.
func (b *Blocklist) Get(ip string) (BlockEntry, bool) {
	canonical, err := NormalizeIP(ip)
	if err != nil {
		return BlockEntry{}, false
	}

	b.mu.RLock()
	entry, ok := b.entries[canonical]
	b.mu.RUnlock()
	if !ok {
		return BlockEntry{}, false
	}
	if !entry.Expired(b.now()) {
		return entry, true
	}

	b.mu.Lock()
	// Re-check: the entry may have been replaced since the read lock.
	if cur, ok := b.entries[canonical]; ok && cur.Expired(b.now()) {
		delete(b.entries, canonical)
	}
	n := len(b.entries)
	b.mu.Unlock()
	metrics.UpdateBlockedIPs(n)
	return BlockEntry{}, false
}

// List returns the active entries, oldest block first.
func (b *Blocklist) List() []BlockEntry {
	now := b.now()
	b.mu.RLock()
	out := make([]BlockEntry, 0, len(b.entries))
	for _, e := range b.entries {
		if !e.Expired(now) {
			out = append(out, e)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].IP < out[j].IP
		}
		return out[i].BlockedAt.Before(out[j].BlockedAt)
	})
	return out
}

// Len returns the number of entries, including expired ones not yet swept.
func (b *Blocklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Sweep evicts entries expired at now and returns how many were removed.
// The persisted copies expire through the store's own TTL.
func (b *Blocklist) Sweep(now time.Time) int {
	b.mu.Lock()
	removed := 0
	for ip, e := range b.entries {
		if e.Expired(now) {
			delete(b.entries, ip)
			removed++
		}
	}
	n := len(b.entries)
	b.mu.Unlock()

	metrics.UpdateBlockedIPs(n)
	if removed > 0 {
		b.logger.Debug().Int("removed", removed).Int("remaining", n).Msg("Swept expired IP blocks")
	}
	return removed
}

// Restore loads persisted entries, skipping expired ones.
func (b *Blocklist) Restore(ctx context.Context) (int, error) {
	if b.store == nil {
		return 0, nil
	}
	entries, err := b.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore blocklist: %w", err)
	}

	now := b.now()
	restored := 0
	b.mu.Lock()
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		b.entries[e.IP] = e
		restored++
	}
	n := len(b.entries)
	b.mu.Unlock()

	metrics.UpdateBlockedIPs(n)
	b.logger.Info().Int("restored", restored).Msg("Blocklist restored")
	return restored, nil
}
