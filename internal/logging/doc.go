// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

// Package logging provides zerolog-based structured logging for the security
// event pipeline.
//
// The package provides:
//   - A process-wide zerolog logger configured once with Init
//   - JSON output for production and console output for development
//   - Correlation ID propagation through context.Context
//   - Component loggers (bus, service, threat, rules, analyzer, supervisor)
//   - An slog adapter so sutureslog can write through zerolog
//   - Masking helpers for user, session and token identifiers
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Msg("Server starting")
//	logging.Ctx(ctx).Warn().Str("ip", ip).Msg("IP blocked")
//
// # Configuration
//
// Environment Variables (mapped by internal/config):
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false (default: false)
//
// Always terminate log chains with .Msg() or .Send(); an unterminated chain
// is never written.
package logging
