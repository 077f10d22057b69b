// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package services

import (
	"context"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
)

// EventCleaner deletes events past their retention period.
// Satisfied by *events.Bus.
type EventCleaner interface {
	CleanupOldEvents(ctx context.Context, retentionDays int) (int64, error)
}

// RetentionService applies the event retention policy on a fixed interval.
// The first pass runs immediately on start.
type RetentionService struct {
	cleaner       EventCleaner
	retentionDays int
	interval      time.Duration
	timeout       time.Duration
	name          string
}

// NewRetentionService creates the cleanup loop. interval defaults to 24h.
func NewRetentionService(cleaner EventCleaner, retentionDays int, interval time.Duration) *RetentionService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionService{
		cleaner:       cleaner,
		retentionDays: retentionDays,
		interval:      interval,
		timeout:       5 * time.Minute,
		name:          "retention-cleanup",
	}
}

// Serve implements suture.Service. Cleanup failures are logged and retried
// on the next tick rather than restarting the service.
func (s *RetentionService) Serve(ctx context.Context) error {
	logger := logging.WithComponent(s.name)
	logger.Info().
		Int("retention_days", s.retentionDays).
		Dur("interval", s.interval).
		Msg("Retention cleanup started")

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *RetentionService) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deleted, err := s.cleaner.CleanupOldEvents(runCtx, s.retentionDays)
	if err != nil {
		if ctx.Err() == nil {
			logging.Error().Err(err).Str("service", s.name).Msg("Retention cleanup failed")
		}
		return
	}
	logging.Debug().Int64("deleted", deleted).Str("service", s.name).Msg("Retention cleanup pass complete")
}

func (s *RetentionService) String() string {
	return s.name
}
