// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/threat"
)

const (
	lockoutReason     = "Multiple failed attempts"
	observationWindow = time.Hour
)

// onAuthFailure counts the failure against the user and IP keys and emits
// one auth_lockout for every failure that locks at least one key.
func (s *Service) onAuthFailure(ctx context.Context, evt events.Event) error {
	keys := failureKeys(&evt)
	if len(keys) == 0 {
		return nil
	}

	var locked []string
	attempts := 0
	for _, key := range keys {
		n, justLocked := s.lockouts.RecordFailure(key, evt.Timestamp)
		if n > attempts {
			attempts = n
		}
		if justLocked {
			locked = append(locked, key)
		} else if n > 0 && n < s.cfg.LockoutThreshold {
			logging.Ctx(ctx).Debug().
				Str("key", key).
				Int("failures", n).
				Int("threshold", s.cfg.LockoutThreshold).
				Msg("Failed authentication counted")
		}
	}
	if len(locked) == 0 {
		return nil
	}

	metrics.RecordLockout()
	until := evt.Timestamp.Add(s.lockouts.duration)
	logging.Ctx(ctx).Warn().
		Strs("keys", locked).
		Int("failures", attempts).
		Time("locked_until", until).
		Msg("Lockout issued")

	_, err := s.bus.Emit(events.DerivedContext(ctx, &evt), events.TypeAuthLockout, events.SeverityHigh, lockoutDetails{
		Reason:         lockoutReason,
		Keys:           locked,
		UserID:         evt.UserID,
		IPAddress:      evt.IPAddress,
		FailedAttempts: attempts,
		LockedUntil:    until,
		TriggerEventID: evt.ID,
	}, nil)
	if err != nil {
		return fmt.Errorf("emit lockout: %w", err)
	}
	return nil
}

func (s *Service) onAuthUnlock(ctx context.Context, evt events.Event) error {
	var req UnlockRequest
	if err := evt.DecodeData(&req); err != nil {
		return fmt.Errorf("decode unlock request: %w", err)
	}
	keys := unlockKeys(req)
	for _, key := range keys {
		s.lockouts.Unlock(key)
	}
	logging.Ctx(ctx).Info().Strs("keys", keys).Str("by", req.By).Msg("Lockout cleared")
	return nil
}

// onThreatDetected blocks the reported IP when the detection is high or
// critical and automatic blocking is on, then emits threat_blocked.
func (s *Service) onThreatDetected(ctx context.Context, evt events.Event) error {
	if !s.cfg.AutoBlock || !evt.Severity.AtLeast(events.SeverityHigh) {
		return nil
	}

	var report ThreatReport
	if err := evt.DecodeData(&report); err != nil {
		return fmt.Errorf("decode threat report: %w", err)
	}
	ip := evt.IPAddress
	if ip == "" {
		ip = report.IPAddress
	}
	if ip == "" {
		return nil
	}
	reason := fmt.Sprintf("automatic: %s", report.ThreatType)
	entry, blocked, err := s.autoBlockOnce(ctx, ip, evt.UserID, reason)
	if err != nil || !blocked {
		return err
	}

	_, err = s.bus.Emit(events.DerivedContext(ctx, &evt), events.TypeThreatBlocked, events.SeverityHigh, blockDetails{
		IPAddress:      entry.IP,
		Reason:         reason,
		ThreatType:     report.ThreatType,
		ExpiresAt:      entry.ExpiresAt,
		TriggerEventID: evt.ID,
	}, nil)
	if err != nil {
		return fmt.Errorf("emit threat blocked: %w", err)
	}
	return nil
}

// autoBlockOnce blocks ip unless it is already blocked or the alert is
// suppressed. Concurrent detections for one IP block it once.
func (s *Service) autoBlockOnce(ctx context.Context, ip, userID, reason string) (threat.BlockEntry, bool, error) {
	s.blockMu.Lock()
	defer s.blockMu.Unlock()

	if s.agg.IsIPBlocked(ip) {
		return threat.BlockEntry{}, false, nil
	}
	if s.suppress(events.TypeThreatBlocked, ip, userID) {
		return threat.BlockEntry{}, false, nil
	}
	entry, err := s.agg.AutoBlockIP(ctx, ip, reason, s.cfg.BlockTTL)
	if err != nil {
		return threat.BlockEntry{}, false, fmt.Errorf("block %s: %w", ip, err)
	}
	return entry, true, nil
}

// observe feeds per-minute activity to the analyzer and assesses the
// actor. It only logs and raises security.anomaly; it never blocks.
func (s *Service) observe(ctx context.Context, evt events.Event) error {
	var subject struct {
		StationID string `json:"station_id"`
	}
	// Payload shape differs per type; a missing station is fine.
	_ = evt.DecodeData(&subject)

	actor := evt.UserID
	if actor == "" {
		actor = subject.StationID
	}
	if actor == "" {
		actor = evt.IPAddress
	}
	if actor == "" {
		return nil
	}
	key := string(evt.Type) + ":" + actor

	series := s.activity.Observe(key, evt.Timestamp)
	assessment := s.agg.Evaluate(ctx, threat.Context{
		RecentEvents: s.relatedEvents(&evt),
		SeriesByKey:  map[string][]float64{key: series},
		SourceIP:     evt.IPAddress,
		UserID:       evt.UserID,
		StationID:    subject.StationID,
		TimeWindow:   observationWindow,
		Now:          evt.Timestamp,
	})

	log := logging.Ctx(ctx)
	log.Debug().
		Str("key", key).
		Float64("score", assessment.Score).
		Str("level", string(assessment.Level)).
		Bool("is_threat", assessment.IsThreat).
		Msg("Activity observed")

	if !assessment.IsThreat || !s.cfg.ObserveEmitsAnomaly {
		return nil
	}
	if s.suppress(events.TypeAnomaly, evt.IPAddress, evt.UserID) {
		return nil
	}

	ruleIDs := make([]string, len(assessment.Hits))
	for i, h := range assessment.Hits {
		ruleIDs[i] = h.RuleID
	}
	log.Warn().
		Str("key", key).
		Float64("score", assessment.Score).
		Strs("rules", ruleIDs).
		Msg("Anomalous activity")

	_, err := s.bus.Emit(events.DerivedContext(ctx, &evt), events.TypeAnomaly, events.SeverityMedium, anomalyDetails{
		TriggerEventID:   evt.ID,
		TriggerEventType: string(evt.Type),
		Key:              key,
		Score:            assessment.Score,
		Level:            string(assessment.Level),
		RuleIDs:          ruleIDs,
		Statistical:      assessment.Contributions.Statistical,
		Rule:             assessment.Contributions.Rule,
		Reputation:       assessment.Contributions.Reputation,
	}, nil)
	if err != nil {
		return fmt.Errorf("emit anomaly: %w", err)
	}
	return nil
}

// relatedEvents returns cached events sharing the user or IP of evt, or
// every cached event when evt carries neither.
func (s *Service) relatedEvents(evt *events.Event) []events.Event {
	cached := s.recent.Latest(0)
	if evt.UserID == "" && evt.IPAddress == "" {
		return cached
	}
	out := cached[:0]
	for _, e := range cached {
		if (evt.UserID != "" && e.UserID == evt.UserID) || (evt.IPAddress != "" && e.IPAddress == evt.IPAddress) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Service) onComplianceViolation(ctx context.Context, evt events.Event) error {
	var v ComplianceViolation
	if err := evt.DecodeData(&v); err != nil {
		return fmt.Errorf("decode compliance violation: %w", err)
	}

	_, err := s.bus.Emit(events.DerivedContext(ctx, &evt), events.TypeComplianceReport, events.SeverityMedium, complianceReport{
		ViolationEventID: evt.ID,
		Regulation:       v.Regulation,
		Requirement:      v.Requirement,
		StationID:        v.StationID,
		ReportedAt:       s.now().UTC(),
	}, nil)
	if err != nil {
		return fmt.Errorf("emit compliance report: %w", err)
	}
	return nil
}
