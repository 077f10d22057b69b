// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/cache"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/config"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/threat"
)

// DefaultCacheSize is the capacity of the recent event ring buffer.
const DefaultCacheSize = 1000

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used for lock expiry and block TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCacheSize sets the ring buffer capacity.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// Service is the producer-facing security event API.
type Service struct {
	bus       *events.Bus
	agg       *threat.Aggregator
	cfg       config.ResponseConfig
	now       func() time.Time
	logger    zerolog.Logger
	cacheSize int

	lockouts   *LockoutTracker
	activity   *activityTracker
	suppressed *lru.LRU[string, time.Time]

	suppressMu sync.Mutex // check-and-mark on suppressed
	blockMu    sync.Mutex // blocked check plus AutoBlockIP

	mu         sync.Mutex
	recent     *cache.RingBuffer[events.Event]
	total      int64
	bySeverity map[events.Severity]int64
	byType     map[events.EventType]int64
	lastEvent  time.Time
}

// New creates a Service on bus and registers the response policies. The
// counting listener is registered first so every accepted event is cached
// and counted before any policy runs.
func New(bus *events.Bus, agg *threat.Aggregator, cfg config.ResponseConfig, opts ...Option) (*Service, error) {
	if bus == nil {
		return nil, fmt.Errorf("service: bus is required")
	}
	if agg == nil {
		return nil, fmt.Errorf("service: threat aggregator is required")
	}

	s := &Service{
		bus:        bus,
		agg:        agg,
		cfg:        cfg,
		now:        time.Now,
		logger:     logging.WithComponent("service"),
		cacheSize:  DefaultCacheSize,
		bySeverity: make(map[events.Severity]int64),
		byType:     make(map[events.EventType]int64),
	}
	for _, opt := range opts {
		opt(s)
	}

	suppressionSize := cfg.SuppressionCacheSize
	if suppressionSize <= 0 {
		suppressionSize = 10000
	}
	window := cfg.SuppressionWindow
	if window <= 0 {
		window = 60 * time.Second
	}

	s.recent = cache.NewRingBuffer[events.Event](s.cacheSize)
	s.lockouts = NewLockoutTracker(cfg.LockoutThreshold, cfg.LockoutWindow, cfg.LockoutDuration)
	s.activity = newActivityTracker(agg.Analyzer(), maxTrackedKeys)
	s.suppressed = lru.NewLRU[string, time.Time](suppressionSize, nil, window)

	bus.SubscribeAll(s.record)

	subscriptions := []struct {
		t events.EventType
		l events.Listener
	}{
		{events.TypeAuthFailure, s.onAuthFailure},
		{events.TypeAuthUnlock, s.onAuthUnlock},
		{events.TypeThreatDetected, s.onThreatDetected},
		{events.TypeStationAccess, s.observe},
		{events.TypeDataRead, s.observe},
		{events.TypeDataWrite, s.observe},
		{events.TypeDataExport, s.observe},
		{events.TypeComplianceViolation, s.onComplianceViolation},
	}
	for _, sub := range subscriptions {
		if err := bus.Subscribe(sub.t, sub.l); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", sub.t, err)
		}
	}

	s.logger.Info().
		Int("lockout_threshold", cfg.LockoutThreshold).
		Dur("lockout_window", cfg.LockoutWindow).
		Bool("auto_block", cfg.AutoBlock).
		Int("cache_size", s.cacheSize).
		Msg("Security event service initialized")
	return s, nil
}

// Bus returns the underlying bus.
func (s *Service) Bus() *events.Bus { return s.bus }

// Aggregator returns the threat aggregator.
func (s *Service) Aggregator() *threat.Aggregator { return s.agg }

// Lockouts returns the lockout tracker.
func (s *Service) Lockouts() *LockoutTracker { return s.lockouts }

// LockoutState returns the state of a tracker key (see UserKey and IPKey).
func (s *Service) LockoutState(key string) LockoutState {
	return s.lockouts.State(key, s.now())
}

// RebuildLockouts replays the stored authentication history from the last
// LockoutDuration plus LockoutWindow into the lockout tracker.
func (s *Service) RebuildLockouts(ctx context.Context) error {
	since := s.now().Add(-(s.cfg.LockoutDuration + s.cfg.LockoutWindow))
	var history []events.Event
	for offset := 0; ; {
		page, err := s.bus.GetEvents(ctx, events.Filter{
			Types:     []events.EventType{events.TypeAuthFailure, events.TypeAuthLockout, events.TypeAuthUnlock},
			StartTime: &since,
			Limit:     events.MaxQueryLimit,
			Offset:    offset,
		})
		if err != nil {
			return fmt.Errorf("load authentication history: %w", err)
		}
		if len(page) == 0 {
			break
		}
		history = append(history, page...)
		offset += len(page)
	}
	s.lockouts.Rebuild(history)
	s.logger.Info().Int("events", len(history)).Msg("Lockout state rebuilt")
	return nil
}

// GetEvents queries the durable store.
func (s *Service) GetEvents(ctx context.Context, filter events.Filter) ([]events.Event, error) {
	return s.bus.GetEvents(ctx, filter)
}

// GetEventStatistics summarizes the durable store over window.
func (s *Service) GetEventStatistics(ctx context.Context, window events.Window) (*events.Statistics, error) {
	return s.bus.GetEventStatistics(ctx, window)
}

// BlockIP blocks ip and records a threat_blocked event.
func (s *Service) BlockIP(ctx context.Context, ip, reason string, ttl time.Duration) (threat.BlockEntry, error) {
	entry, err := s.agg.BlockIP(ctx, ip, reason, ttl)
	if err != nil {
		return threat.BlockEntry{}, err
	}
	_, err = s.bus.Emit(ctx, events.TypeThreatBlocked, events.SeverityHigh, blockDetails{
		IPAddress: entry.IP,
		Reason:    reason,
		ExpiresAt: entry.ExpiresAt,
	}, nil)
	return entry, err
}

// UnblockIP lifts a block and records a threat.unblocked event when one
// existed.
func (s *Service) UnblockIP(ctx context.Context, ip string) (bool, error) {
	existed, err := s.agg.UnblockIP(ctx, ip)
	if err != nil || !existed {
		return existed, err
	}
	canonical, _ := threat.NormalizeIP(ip)
	_, err = s.bus.Emit(ctx, events.TypeThreatUnblocked, events.SeverityLow, map[string]string{"ip_address": canonical}, nil)
	return existed, err
}

// IsIPBlocked reports whether ip is blocked.
func (s *Service) IsIPBlocked(ip string) bool {
	return s.agg.IsIPBlocked(ip)
}

// suppress reports whether a derived alert for the same type, IP and user
// was raised within the suppression window, and marks it raised if not.
func (s *Service) suppress(t events.EventType, ip, userID string) bool {
	key := strings.Join([]string{string(t), ip, userID}, "|")
	s.suppressMu.Lock()
	defer s.suppressMu.Unlock()
	if _, ok := s.suppressed.Get(key); ok {
		metrics.RecordAlertSuppressed(string(t))
		return true
	}
	s.suppressed.Add(key, s.now())
	return false
}
