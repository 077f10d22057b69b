// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

// Package validation wraps go-playground/validator v10 behind a shared
// singleton so struct metadata is cached once per process.
//
// It validates configuration sections loaded by internal/config and the
// payloads accepted by the convenience emitters in internal/service:
//
//	type AuthAttempt struct {
//	    UserID    string `validate:"required_without=Username"`
//	    IPAddress string `validate:"omitempty,ip"`
//	}
//
//	if err := validation.ValidateStruct(&attempt); err != nil {
//	    return fmt.Errorf("auth attempt: %w", err)
//	}
//
// Custom tags:
//   - station_id: manufacturing station identifiers such as "S-01" or "LAM-3"
package validation
