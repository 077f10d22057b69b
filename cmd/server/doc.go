// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

// Package main runs the security event pipeline as a standalone process.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging
//  3. Event store: DuckDB when DUCKDB_ENABLED, otherwise in memory
//  4. JetStream forwarding when NATS_ENABLED (embedded server optional)
//  5. Event bus, statistical analyzer, threat aggregator, blocklist restore
//  6. Security event service and lockout rebuild from history
//  7. Supervisor tree: persister, retention cleanup, blocklist sweeper, HTTP
//
// SIGINT and SIGTERM cancel the tree; the bus is flushed before the store
// is closed.
package main
